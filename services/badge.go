package services

import (
	"delivery-impact-service/models"

	"github.com/gosimple/slug"
)

// ruleCode is the stable id of a rule: its Code, or the slug of its Name.
func ruleCode(r models.AwardRule) string {
	if r.Code != "" {
		return r.Code
	}
	return slug.Make(r.Name)
}

// Catalogue returns badges then achievements, with codes filled in.
func Catalogue() []models.AwardRule {
	rules := make([]models.AwardRule, 0, len(models.BadgeRules)+len(models.AchievementRules))
	for _, r := range append(append([]models.AwardRule{}, models.BadgeRules...), models.AchievementRules...) {
		r.Code = ruleCode(r)
		rules = append(rules, r)
	}
	return rules
}

// metricValue reads one named metric off a snapshot. Achievement thresholds
// on impact points use the aggregator's own total, never the bonus, so an
// award cannot unlock another award.
func metricValue(snap *models.ImpactSnapshot, key string) (float64, bool) {
	switch key {
	case models.MetricTotalDonations:
		return float64(snap.TotalDonations), true
	case models.MetricCompletedDonations:
		return float64(snap.CompletedDonations), true
	case models.MetricPeopleHelped:
		return float64(snap.PeopleHelped), true
	case models.MetricFoodSavedKg:
		return snap.FoodSavedKg, true
	case models.MetricCarbonReducedKg:
		return snap.CarbonReducedKg, true
	case models.MetricCategories:
		return float64(len(snap.TopCategories)), true
	case models.MetricImpactPoints:
		return float64(snap.TotalImpactPoints), true
	}
	return 0, false
}

// meetsThreshold requires every metric in req. Unknown metrics never match.
func meetsThreshold(snap *models.ImpactSnapshot, req map[string]float64) bool {
	if len(req) == 0 {
		return false
	}
	for key, required := range req {
		v, ok := metricValue(snap, key)
		if !ok || v < required {
			return false
		}
	}
	return true
}
