package billing

import (
	"voicedesk/models"

	"github.com/shopspring/decimal"
)

// PriceSchedule holds the per-minute rates charged in platform mode
type PriceSchedule struct {
	PlatformFee   decimal.Decimal                     `json:"platformFee"`
	CategoryCosts map[models.Category]decimal.Decimal `json:"categoryCosts"`
}

// DefaultPriceSchedule returns the advertised pricing, in USD per minute.
// This is the only place these rates are defined.
func DefaultPriceSchedule() PriceSchedule {
	return PriceSchedule{
		PlatformFee: decimal.RequireFromString("0.008"),
		CategoryCosts: map[models.Category]decimal.Decimal{
			models.CategoryLLM:       decimal.RequireFromString("0.001"),
			models.CategorySTT:       decimal.RequireFromString("0.004"),
			models.CategoryTTS:       decimal.RequireFromString("0.005"),
			models.CategoryTelephony: decimal.RequireFromString("0.014"),
		},
	}
}

// CategoryCost returns the platform rate for a category (zero if unknown)
func (p PriceSchedule) CategoryCost(category models.Category) decimal.Decimal {
	if cost, ok := p.CategoryCosts[category]; ok {
		return cost
	}
	return decimal.Zero
}

// Cost computes the blended per-minute cost for the given billing modes.
// BYOK categories contribute nothing on top of the platform fee.
func (p PriceSchedule) Cost(modes models.BillingModes) decimal.Decimal {
	total := p.PlatformFee
	for _, category := range models.AllCategories {
		if modes[category] == models.BillingModeBYOK {
			continue
		}
		total = total.Add(p.CategoryCost(category))
	}
	return total
}

// Breakdown returns the cost contribution of each category for the given modes
func (p PriceSchedule) Breakdown(modes models.BillingModes) []models.CostLine {
	lines := make([]models.CostLine, 0, len(models.AllCategories))
	for _, category := range models.AllCategories {
		mode := modes[category]
		if mode == "" {
			mode = models.BillingModePlatform
		}

		cost := decimal.Zero
		if mode == models.BillingModePlatform {
			cost = p.CategoryCost(category)
		}

		lines = append(lines, models.CostLine{
			Category:      category,
			Mode:          mode,
			CostPerMinute: cost.Round(3).InexactFloat64(),
		})
	}
	return lines
}
