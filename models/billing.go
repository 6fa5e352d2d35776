package models

// BillingMode says who pays the vendor for a category
type BillingMode string

const (
	BillingModePlatform BillingMode = "platform"
	BillingModeBYOK     BillingMode = "byok"
)

// BillingModes maps every category to its billing mode
type BillingModes map[Category]BillingMode

// ByokCount returns the number of categories covered by user keys
func (m BillingModes) ByokCount() int {
	count := 0
	for _, mode := range m {
		if mode == BillingModeBYOK {
			count++
		}
	}
	return count
}

// CostLine is the per-minute cost contribution of a single category
type CostLine struct {
	Category      Category    `json:"category"`
	Mode          BillingMode `json:"mode"`
	CostPerMinute float64     `json:"costPerMinute"`
}

// BillingSummary is the derived billing state consumed by the settings panel
type BillingSummary struct {
	EstimatedCostPerMinute float64      `json:"estimatedCostPerMinute"` // USD per minute, 3 decimal places
	PlatformFee            float64      `json:"platformFee"`
	TotalKeyCount          int          `json:"totalKeyCount"`
	ByokCategoryCount      int          `json:"byokCategoryCount"`
	BillingMode            BillingModes `json:"billingMode"`
	Breakdown              []CostLine   `json:"breakdown"`
}
