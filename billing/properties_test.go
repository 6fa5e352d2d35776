package billing

import (
	"fmt"
	"testing"

	"voicedesk/models"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

// categoryGen picks one of the four categories
var categoryGen = gen.IntRange(0, len(models.AllCategories)-1).Map(func(i int) models.Category {
	return models.AllCategories[i]
})

// buildResolver adds one key per entry, all with distinct secrets
func buildResolver(categories []models.Category) *Resolver {
	r := NewResolver(DefaultPriceSchedule())
	for i, c := range categories {
		_, _ = r.AddKey("vendor", c, fmt.Sprintf("secret-%d", i))
	}
	return r
}

func TestProperty_BillingModeFollowsKeyPresence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("a category is byok iff it has a key", prop.ForAll(
		func(categories []models.Category, invalidate []bool) bool {
			r := buildResolver(categories)

			// Validity must never influence the billing mode
			for i, k := range r.Keys() {
				if i < len(invalidate) && invalidate[i] {
					r.SetValidity(k.ID, false)
				}
			}

			modes := r.BillingMode()
			for _, c := range models.AllCategories {
				want := models.BillingModePlatform
				if len(r.KeysByType(c)) > 0 {
					want = models.BillingModeBYOK
				}
				if modes[c] != want {
					return false
				}
			}
			return true
		},
		gen.SliceOf(categoryGen),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

func TestProperty_CostFormula(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	schedule := DefaultPriceSchedule()

	properties.Property("cost is platform fee plus platform-billed categories", prop.ForAll(
		func(categories []models.Category) bool {
			r := buildResolver(categories)
			modes := r.BillingMode()

			want := schedule.PlatformFee
			for _, c := range models.AllCategories {
				if modes[c] == models.BillingModePlatform {
					want = want.Add(schedule.CategoryCost(c))
				}
			}
			return r.EstimatedCostPerMinute().Equal(want)
		},
		gen.SliceOf(categoryGen),
	))

	properties.Property("cost stays between fee-only and all-platform", prop.ForAll(
		func(categories []models.Category) bool {
			cost := buildResolver(categories).EstimatedCostPerMinute()
			return cost.GreaterThanOrEqual(decimal.RequireFromString("0.008")) &&
				cost.LessThanOrEqual(decimal.RequireFromString("0.032"))
		},
		gen.SliceOf(categoryGen),
	))

	properties.TestingRun(t)
}

func TestProperty_SingleActiveKeyPerCategory(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	exactlyOneActive := func(r *Resolver) bool {
		for _, c := range models.AllCategories {
			keys := r.KeysByType(c)
			active := 0
			for _, k := range keys {
				if k.IsActive {
					active++
				}
			}
			if len(keys) > 0 && active != 1 {
				return false
			}
			if len(keys) == 0 && active != 0 {
				return false
			}
		}
		return true
	}

	properties.Property("activate and remove keep one active key", prop.ForAll(
		func(categories []models.Category, activations []int, removals []int) bool {
			r := buildResolver(categories)
			if !exactlyOneActive(r) {
				return false
			}

			for _, idx := range activations {
				keys := r.Keys()
				if len(keys) == 0 {
					break
				}
				id := keys[idx%len(keys)].ID
				r.SetActiveKey(id)
				r.SetActiveKey(id)
				if !exactlyOneActive(r) {
					return false
				}
			}

			for _, idx := range removals {
				keys := r.Keys()
				if len(keys) == 0 {
					break
				}
				before := len(keys)
				r.RemoveKey(keys[idx%len(keys)].ID)
				if r.TotalKeyCount() != before-1 || !exactlyOneActive(r) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(categoryGen),
		gen.SliceOf(gen.IntRange(0, 100)),
		gen.SliceOf(gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}
