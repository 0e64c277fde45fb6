// Package achievements evaluates threshold badges against a user's
// statistics and awards each one at most once.
package achievements

import "github.com/TobiSchelling/catchfeed/internal/harvest"

// Code is the stable key of a catalog achievement.
type Code string

const (
	FirstReport    Code = "first_report"
	Reports10      Code = "reports_10"
	Reports50      Code = "reports_50"
	Reports100     Code = "reports_100"
	Fish100        Code = "fish_100"
	Fish500        Code = "fish_500"
	Streak3        Code = "streak_3"
	Streak7        Code = "streak_7"
	Streak30       Code = "streak_30"
	SpeciesAll5    Code = "species_all_5"
	RewardsEntered Code = "rewards_entered"
	PhotoFirst     Code = "photo_first"
)

// codes lists every known code in catalog order.
var codes = []Code{
	RewardsEntered, FirstReport, PhotoFirst,
	Reports10, Reports50, Reports100,
	Fish100, Fish500,
	Streak3, Streak7, Streak30,
	SpeciesAll5,
}

// Categories used by the default catalog.
const (
	CategoryMilestone = "milestone"
	CategorySpecial   = "special"
	CategoryFish      = "fish"
	CategoryStreak    = "streak"
	CategorySpecies   = "species"
)

// seeds holds the display fields of each code.
var seeds = map[Code]harvest.Achievement{
	RewardsEntered: {Name: "Rewards Member", Description: "Joined the rewards program and filed a report", Category: CategorySpecial, Icon: "🎁", SortOrder: 5},
	FirstReport:    {Name: "First Report", Description: "Submitted your first harvest report", Category: CategoryMilestone, Icon: "🎣", SortOrder: 10},
	PhotoFirst:     {Name: "Picture Perfect", Description: "Shared photos with your harvest reports", Category: CategorySpecial, Icon: "📸", SortOrder: 20},
	Reports10:      {Name: "Regular Reporter", Description: "Submitted 10 harvest reports", Category: CategoryMilestone, Icon: "📋", SortOrder: 30},
	Reports50:      {Name: "Dedicated Reporter", Description: "Submitted 50 harvest reports", Category: CategoryMilestone, Icon: "🏅", SortOrder: 40},
	Reports100:     {Name: "Century Reporter", Description: "Submitted 100 harvest reports", Category: CategoryMilestone, Icon: "🏆", SortOrder: 50},
	Fish100:        {Name: "Century Catch", Description: "Reported 100 fish", Category: CategoryFish, Icon: "🐟", SortOrder: 60},
	Fish500:        {Name: "Master Angler", Description: "Reported 500 fish", Category: CategoryFish, Icon: "🐠", SortOrder: 70},
	Streak3:        {Name: "Hot Streak", Description: "Reported 3 days in a row", Category: CategoryStreak, Icon: "🔥", SortOrder: 80},
	Streak7:        {Name: "Week Warrior", Description: "Reported 7 days in a row", Category: CategoryStreak, Icon: "⚡", SortOrder: 90},
	Streak30:       {Name: "Monthly Master", Description: "Reported 30 days in a row", Category: CategoryStreak, Icon: "🌟", SortOrder: 100},
	SpeciesAll5:    {Name: "Grand Slam", Description: "Caught every tracked species", Category: CategorySpecies, Icon: "🎯", SortOrder: 110},
}

// DefaultCatalog returns the seed rows for the achievements table, one
// active entry per known code.
func DefaultCatalog() []harvest.Achievement {
	out := make([]harvest.Achievement, 0, len(codes))
	for _, c := range codes {
		a := seeds[c]
		a.Code = string(c)
		a.IsActive = true
		out = append(out, a)
	}
	return out
}
