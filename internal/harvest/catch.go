package harvest

import "time"

// DateLayout is the storage and wire format of harvest dates.
const DateLayout = "2006-01-02"

// SpeciesCatch is the canonical per-species slice of a report.
type SpeciesCatch struct {
	Species   Species  `json:"species"`
	Count     int      `json:"count"`
	Lengths   []string `json:"lengths,omitempty"`
	TagNumber string   `json:"tagNumber,omitempty"`
}

// CatchSource is implemented by the two shapes a report's catch data can take.
type CatchSource interface {
	Catches() []SpeciesCatch
}

// AggregateCounts holds the five named species-count columns of a report.
type AggregateCounts struct {
	RedDrum         int `json:"redDrumCount"`
	Flounder        int `json:"flounderCount"`
	SpottedSeatrout int `json:"spottedSeatroutCount"`
	Weakfish        int `json:"weakfishCount"`
	StripedBass     int `json:"stripedBassCount"`
}

// Count returns the column value for a tracked species.
func (a AggregateCounts) Count(s Species) int {
	switch s {
	case RedDrum:
		return a.RedDrum
	case Flounder:
		return a.Flounder
	case SpottedSeatrout:
		return a.SpottedSeatrout
	case Weakfish:
		return a.Weakfish
	case StripedBass:
		return a.StripedBass
	}
	return 0
}

// Catches returns one entry per species with a positive count, in catalog order.
func (a AggregateCounts) Catches() []SpeciesCatch {
	var out []SpeciesCatch
	for _, s := range TrackedSpecies {
		if n := a.Count(s); n > 0 {
			out = append(out, SpeciesCatch{Species: s, Count: n})
		}
	}
	return out
}

// ItemizedCatches is the one-to-many species+length record list of a report.
type ItemizedCatches []SpeciesCatch

// Catches resolves species names, merges duplicate species (counts summed,
// lengths concatenated) and orders tracked species by catalog position
// followed by untracked species in first-seen order. An item without a count
// counts one fish per recorded length.
func (items ItemizedCatches) Catches() []SpeciesCatch {
	merged := make(map[Species]*SpeciesCatch)
	var untracked []Species

	for _, item := range items {
		sp := item.Species
		if !sp.Tracked() {
			resolved, _ := ParseSpecies(string(sp))
			if resolved == "" {
				continue
			}
			sp = resolved
		}

		count := item.Count
		if count <= 0 {
			count = len(item.Lengths)
		}
		if count <= 0 {
			continue
		}

		c, ok := merged[sp]
		if !ok {
			c = &SpeciesCatch{Species: sp, TagNumber: item.TagNumber}
			merged[sp] = c
			if !sp.Tracked() {
				untracked = append(untracked, sp)
			}
		}
		c.Count += count
		c.Lengths = append(c.Lengths, item.Lengths...)
		if c.TagNumber == "" {
			c.TagNumber = item.TagNumber
		}
	}

	if len(merged) == 0 {
		return nil
	}

	out := make([]SpeciesCatch, 0, len(merged))
	for _, s := range TrackedSpecies {
		if c, ok := merged[s]; ok {
			out = append(out, *c)
		}
	}
	for _, s := range untracked {
		out = append(out, *merged[s])
	}
	return out
}

// Resolve returns the canonical catches of a report. Itemized data is
// authoritative whenever it yields at least one species.
func Resolve(agg AggregateCounts, items ItemizedCatches) []SpeciesCatch {
	if c := items.Catches(); len(c) > 0 {
		return c
	}
	return agg.Catches()
}

// TotalFish sums the counts of all catches.
func TotalFish(catches []SpeciesCatch) int {
	total := 0
	for _, c := range catches {
		total += c.Count
	}
	return total
}

// PrimarySpecies returns the species with the highest count; the earliest
// entry wins ties. Empty input yields "".
func PrimarySpecies(catches []SpeciesCatch) Species {
	var best Species
	bestCount := 0
	for _, c := range catches {
		if c.Count > bestCount {
			best, bestCount = c.Species, c.Count
		}
	}
	return best
}

// Report is one harvest submission.
type Report struct {
	ID          string
	UserID      string
	HarvestDate time.Time
	CreatedAt   time.Time
	PhotoURL    *string
	AreaLabel   *string
	Counts      AggregateCounts
	Items       ItemizedCatches
}

// Catches returns the report's canonical species list.
func (r Report) Catches() []SpeciesCatch {
	return Resolve(r.Counts, r.Items)
}

// HasPhoto reports whether a photo was attached.
func (r Report) HasPhoto() bool {
	return r.PhotoURL != nil && *r.PhotoURL != ""
}
