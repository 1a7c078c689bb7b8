package models

// Snapshot metric keys usable in a rule threshold.
const (
	MetricTotalDonations     = "total_donations"
	MetricCompletedDonations = "completed_donations"
	MetricPeopleHelped       = "people_helped"
	MetricFoodSavedKg        = "food_saved_kg"
	MetricCarbonReducedKg    = "carbon_reduced_kg"
	MetricCategories         = "categories"
	MetricImpactPoints       = "impact_points"
)

// AwardRule is a named, point-valued threshold predicate over an ImpactSnapshot.
// Every key in Threshold must be met. Code is derived from Name when empty.
type AwardRule struct {
	Code        string
	Name        string
	Description string
	Kind        AwardKind
	Points      int
	Threshold   map[string]float64 // e.g., {"completed_donations": 5}
}

// BadgeRules are evaluated on every aggregation cycle.
var BadgeRules = []AwardRule{
	{
		Name:        "First Bite",
		Description: "Shared your first donation",
		Kind:        AwardBadge,
		Points:      10,
		Threshold:   map[string]float64{MetricTotalDonations: 1},
	},
	{
		Name:        "Generous Giver",
		Description: "Completed 5 donations",
		Kind:        AwardBadge,
		Points:      50,
		Threshold:   map[string]float64{MetricCompletedDonations: 5},
	},
	{
		Name:        "Community Hero",
		Description: "Helped feed 100 people",
		Kind:        AwardBadge,
		Points:      100,
		Threshold:   map[string]float64{MetricPeopleHelped: 100},
	},
	{
		Name:        "Waste Warrior",
		Description: "Saved 50 kg of food",
		Kind:        AwardBadge,
		Points:      75,
		Threshold:   map[string]float64{MetricFoodSavedKg: 50},
	},
	{
		Name:        "Climate Champion",
		Description: "Kept 100 kg of CO2 out of the air",
		Kind:        AwardBadge,
		Points:      100,
		Threshold:   map[string]float64{MetricCarbonReducedKg: 100},
	},
	{
		Name:        "Variety Pack",
		Description: "Donated from 3 different food categories",
		Kind:        AwardBadge,
		Points:      30,
		Threshold:   map[string]float64{MetricCategories: 3},
	},
	{
		Name:        "Dedicated Donor",
		Description: "Shared 25 donations",
		Kind:        AwardBadge,
		Points:      150,
		Threshold:   map[string]float64{MetricTotalDonations: 25},
	},
	{
		Name:        "Hunger Fighter",
		Description: "Completed 50 donations and helped 500 people",
		Kind:        AwardBadge,
		Points:      300,
		Threshold:   map[string]float64{MetricCompletedDonations: 50, MetricPeopleHelped: 500},
	},
}

// AchievementRules are milestones on the base impact points.
var AchievementRules = []AwardRule{
	{
		Name:      "Rising Impact",
		Kind:      AwardAchievement,
		Points:    25,
		Threshold: map[string]float64{MetricImpactPoints: 500},
	},
	{
		Name:      "Impact Maker",
		Kind:      AwardAchievement,
		Points:    75,
		Threshold: map[string]float64{MetricImpactPoints: 2000},
	},
	{
		Name:      "Impact Legend",
		Kind:      AwardAchievement,
		Points:    200,
		Threshold: map[string]float64{MetricImpactPoints: 10000},
	},
}
