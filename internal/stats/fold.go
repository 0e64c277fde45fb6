// Package stats turns harvest reports into running per-user totals.
package stats

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/TobiSchelling/catchfeed/internal/harvest"
)

var lengthSuffixes = []string{"inches", "inch", "in.", "in", `"`, "”", "''"}

// lengthNumber is the numeric part of a length. The Postgres leaderboard
// function in pgstore/migrations mirrors this grammar.
var lengthNumber = regexp.MustCompile(`^([0-9]+(\.[0-9]*)?|\.[0-9]+)$`)

// ParseLength reads a fish length in inches such as "27.5", `27.5"` or
// "27 in". Anything that does not yield a positive plain decimal number,
// like "45cm" or "20-22", is rejected.
func ParseLength(s string) (float64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, suffix := range lengthSuffixes {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
			break
		}
	}
	if !lengthNumber.MatchString(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// LargestLength returns the largest parsable length in lengths.
func LargestLength(lengths []string) (float64, bool) {
	best, found := 0.0, false
	for _, l := range lengths {
		if v, ok := ParseLength(l); ok && v > best {
			best, found = v, true
		}
	}
	return best, found
}

// NextSpeciesStat adds one report's catch of a species to prev, which may be
// nil for a species the user has not caught before.
func NextSpeciesStat(prev *harvest.UserSpeciesStat, userID string, c harvest.SpeciesCatch, harvestDate time.Time) harvest.UserSpeciesStat {
	next := harvest.UserSpeciesStat{UserID: userID, Species: c.Species}
	if prev != nil {
		next = *prev
	}
	if c.Count > 0 {
		next.TotalCount += c.Count
	}

	if next.LastCaughtAt == nil || harvestDate.After(*next.LastCaughtAt) {
		d := harvestDate
		next.LastCaughtAt = &d
	}

	if v, ok := LargestLength(c.Lengths); ok {
		if next.LargestLength == nil || v > *next.LargestLength {
			next.LargestLength = &v
		}
	}
	return next
}

// NextUserStats counts one more report of fish fish harvested on
// harvestDate. The streak grows when the report falls on the day after the
// last active day, is kept on the same day, and restarts at 1 after a gap.
// A report dated before the last active day leaves the streak and the last
// active day as they are.
func NextUserStats(prev *harvest.UserStats, userID string, harvestDate time.Time, fish int) harvest.UserStats {
	next := harvest.UserStats{UserID: userID}
	if prev != nil {
		next = *prev
		next.UserID = userID
	}
	next.TotalReports++
	if fish > 0 {
		next.TotalFish += fish
	}

	if next.LastActiveAt == nil {
		next.CurrentStreakDays = 1
		d := harvestDate
		next.LastActiveAt = &d
	} else {
		switch gap := daysBetween(*next.LastActiveAt, harvestDate); {
		case gap == 0:
			next.CurrentStreakDays = max(next.CurrentStreakDays, 1)
		case gap == 1:
			next.CurrentStreakDays++
		case gap > 1:
			next.CurrentStreakDays = 1
		}
		if harvestDate.After(*next.LastActiveAt) {
			d := harvestDate
			next.LastActiveAt = &d
		}
	}

	next.LongestStreakDays = max(next.LongestStreakDays, next.CurrentStreakDays)
	return next
}

// daysBetween counts calendar days from a to b.
func daysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(math.Round(db.Sub(da).Hours() / 24))
}

// Fold replays reports, oldest first, from empty statistics. Reports are
// ordered by harvest date, then creation time.
func Fold(userID string, reports []harvest.Report) (harvest.UserStats, []harvest.UserSpeciesStat) {
	ordered := make([]harvest.Report, len(reports))
	copy(ordered, reports)
	SortChronological(ordered)

	var user *harvest.UserStats
	species := make(map[harvest.Species]*harvest.UserSpeciesStat)
	var seen []harvest.Species

	for _, r := range ordered {
		catches := r.Catches()
		for _, c := range catches {
			prev := species[c.Species]
			next := NextSpeciesStat(prev, userID, c, r.HarvestDate)
			if prev == nil {
				seen = append(seen, c.Species)
			}
			species[c.Species] = &next
		}
		next := NextUserStats(user, userID, r.HarvestDate, harvest.TotalFish(catches))
		user = &next
	}

	if user == nil {
		user = &harvest.UserStats{UserID: userID}
	}

	out := make([]harvest.UserSpeciesStat, 0, len(species))
	for _, s := range harvest.TrackedSpecies {
		if st, ok := species[s]; ok {
			out = append(out, *st)
		}
	}
	for _, s := range seen {
		if !s.Tracked() {
			out = append(out, *species[s])
		}
	}
	return *user, out
}
