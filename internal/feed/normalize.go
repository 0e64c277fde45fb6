package feed

import "github.com/TobiSchelling/catchfeed/internal/harvest"

// Normalize converts a store row into a feed entry. Rows whose catches
// resolve to no species are rejected.
func Normalize(row harvest.FeedRow) (harvest.CatchFeedEntry, bool) {
	catches := row.Report.Catches()
	if len(catches) == 0 {
		return harvest.CatchFeedEntry{}, false
	}
	return harvest.CatchFeedEntry{
		ID:             row.Report.ID,
		UserID:         row.Report.UserID,
		AnglerName:     harvest.DisplayName(row.FirstName, row.LastName),
		AvatarURL:      row.AvatarURL,
		PrimarySpecies: harvest.PrimarySpecies(catches),
		SpeciesList:    catches,
		TotalFish:      harvest.TotalFish(catches),
		PhotoURL:       row.Report.PhotoURL,
		Location:       row.Report.AreaLabel,
		CreatedAt:      row.Report.CreatedAt,
	}, true
}

// NormalizeAll normalizes rows in order, skipping rejected ones.
func NormalizeAll(rows []harvest.FeedRow) []harvest.CatchFeedEntry {
	out := make([]harvest.CatchFeedEntry, 0, len(rows))
	for _, row := range rows {
		if e, ok := Normalize(row); ok {
			out = append(out, e)
		}
	}
	return out
}
