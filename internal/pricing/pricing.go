// Package pricing resolves provider rates into user-facing rates by applying
// markup rules. It is pure: callers load the active rules and pass them in.
//
// Rules apply in precedence order service > category > platform > global.
// A service-level rule with a fixed addition wins outright. Within the
// category and platform levels, the maximum percentage and fixed addition
// seen across matching rules are kept. Global values fill in only where no
// narrower rule set anything.
package pricing

import (
	"sort"
	"strings"

	"github.com/0xRedwolf/caryvn-backend/internal/model"
	"github.com/shopspring/decimal"
)

var (
	oneThousand = decimal.NewFromInt(1000)
	oneHundred  = decimal.NewFromInt(100)
)

// platforms is the fixed vocabulary used to derive a platform from a raw
// provider category string.
var platforms = []string{
	"instagram", "tiktok", "youtube", "facebook", "twitter",
	"telegram", "snapchat", "linkedin", "threads", "spotify",
}

// DetectPlatform returns the platform implied by a category name, or "".
func DetectPlatform(categoryName string) string {
	lower := strings.ToLower(categoryName)
	for _, p := range platforms {
		if strings.Contains(lower, p) {
			return strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return ""
}

// UserRate applies markup rules to a provider rate and returns the
// user-facing rate per 1000, rounded half-even to 4 decimal places.
// serviceID may be zero when pricing an entry that has no local service row
// yet (catalog sync). platform is derived from categoryName when empty.
func UserRate(providerRate decimal.Decimal, serviceID uint64, categoryName, platform string, rules []model.MarkupRule) decimal.Decimal {
	if platform == "" && categoryName != "" {
		platform = DetectPlatform(categoryName)
	}

	sorted := make([]model.MarkupRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })

	appliedPct := decimal.Zero
	appliedFixed := decimal.Zero

	for _, r := range sorted {
		if !r.IsActive {
			continue
		}
		switch r.Level {
		case model.MarkupLevelService:
			if serviceID != 0 && r.ServiceID != nil && *r.ServiceID == serviceID {
				// Service-level fixed addition wins outright.
				if r.FixedAddition.IsPositive() {
					return providerRate.Add(r.FixedAddition).RoundBank(4)
				}
				appliedPct = decimal.Max(appliedPct, r.Percentage)
			}
		case model.MarkupLevelCategory:
			if categoryName != "" && strings.EqualFold(r.CategoryName, categoryName) {
				appliedPct = decimal.Max(appliedPct, r.Percentage)
				appliedFixed = decimal.Max(appliedFixed, r.FixedAddition)
			}
		case model.MarkupLevelPlatform:
			if platform != "" && strings.EqualFold(r.Platform, platform) {
				appliedPct = decimal.Max(appliedPct, r.Percentage)
				appliedFixed = decimal.Max(appliedFixed, r.FixedAddition)
			}
		case model.MarkupLevelGlobal:
			if appliedPct.IsZero() {
				appliedPct = r.Percentage
			}
			if appliedFixed.IsZero() {
				appliedFixed = r.FixedAddition
			}
		}
	}

	final := providerRate
	if appliedPct.IsPositive() {
		final = final.Mul(decimal.NewFromInt(1).Add(appliedPct.Div(oneHundred)))
	}
	if appliedFixed.IsPositive() {
		final = final.Add(appliedFixed)
	}
	return final.RoundBank(4)
}

// Profit is the margin on an order: (userRate - providerRate) per unit times
// quantity, rates being per 1000 units.
func Profit(providerRate, userRate decimal.Decimal, quantity int) decimal.Decimal {
	q := decimal.NewFromInt(int64(quantity))
	providerCost := providerRate.Div(oneThousand).Mul(q)
	userCharge := userRate.Div(oneThousand).Mul(q)
	return userCharge.Sub(providerCost).RoundBank(4)
}

// OrderCharge is the amount debited from the wallet for an order.
func OrderCharge(userRate decimal.Decimal, quantity int) decimal.Decimal {
	return userRate.Div(oneThousand).Mul(decimal.NewFromInt(int64(quantity))).RoundBank(4)
}
