package achievements

import (
	"sort"

	"github.com/TobiSchelling/catchfeed/internal/harvest"
)

// Input is everything a rule may look at.
type Input struct {
	Stats         harvest.UserStats
	PhotoReports  int
	RewardsMember bool
	SpeciesTotals map[harvest.Species]int
}

// Rule reports whether an achievement is satisfied.
type Rule func(Input) bool

func minReports(n int) Rule {
	return func(in Input) bool { return in.Stats.TotalReports >= n }
}

func minFish(n int) Rule {
	return func(in Input) bool { return in.Stats.TotalFish >= n }
}

func minStreak(n int) Rule {
	return func(in Input) bool { return in.Stats.LongestStreakDays >= n }
}

var rules = map[Code]Rule{
	FirstReport: minReports(1),
	Reports10:   minReports(10),
	Reports50:   minReports(50),
	Reports100:  minReports(100),
	Fish100:     minFish(100),
	Fish500:     minFish(500),
	Streak3:     minStreak(3),
	Streak7:     minStreak(7),
	Streak30:    minStreak(30),
	SpeciesAll5: func(in Input) bool {
		for _, s := range harvest.TrackedSpecies {
			if in.SpeciesTotals[s] <= 0 {
				return false
			}
		}
		return true
	},
	RewardsEntered: func(in Input) bool {
		return in.RewardsMember && in.Stats.TotalReports >= 1
	},
	// Awarded on the second photographed report, not the first. Kept as
	// shipped pending a product decision.
	PhotoFirst: func(in Input) bool { return in.PhotoReports >= 2 },
}

// RuleFor returns the predicate for code.
func RuleFor(code Code) (Rule, bool) {
	r, ok := rules[code]
	return r, ok
}

var priority = map[Code]int{
	RewardsEntered: 0,
	FirstReport:    10,
	PhotoFirst:     11,
	Reports10:      20,
	Reports50:      21,
	Reports100:     22,
	Fish100:        30,
	Fish500:        31,
	Streak3:        40,
	Streak7:        41,
	Streak30:       42,
	SpeciesAll5:    50,
}

const unknownPriority = 1 << 20

// Priority returns the display rank of code; unknown codes rank last.
func Priority(code string) int {
	if p, ok := priority[Code(code)]; ok {
		return p
	}
	return unknownPriority
}

// SortByPriority orders achievements for display. Equal priorities keep
// catalog sort order, then code.
func SortByPriority(list []harvest.Achievement) {
	sort.SliceStable(list, func(i, j int) bool {
		pi, pj := Priority(list[i].Code), Priority(list[j].Code)
		if pi != pj {
			return pi < pj
		}
		if list[i].SortOrder != list[j].SortOrder {
			return list[i].SortOrder < list[j].SortOrder
		}
		return list[i].Code < list[j].Code
	})
}

// Qualifying returns the active, not yet earned catalog entries whose rule
// holds for in, in priority order. Entries with unknown codes never qualify
// and are returned separately.
func Qualifying(catalog []harvest.Achievement, earned map[int64]bool, in Input) (matched []harvest.Achievement, unknown []string) {
	for _, a := range catalog {
		if !a.IsActive || earned[a.ID] {
			continue
		}
		rule, ok := rules[Code(a.Code)]
		if !ok {
			unknown = append(unknown, a.Code)
			continue
		}
		if rule(in) {
			matched = append(matched, a)
		}
	}
	SortByPriority(matched)
	return matched, unknown
}
