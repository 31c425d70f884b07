package services

import "github.com/shopspring/decimal"

// Commission rates by agent tier. The applicable rate is captured into the
// sale transaction's metadata at sale time, so a later tier change never
// rewrites history.
var commissionRates = map[string]decimal.Decimal{
	"BRONZE":   decimal.New(5, -2),
	"SILVER":   decimal.New(7, -2),
	"GOLD":     decimal.New(10, -2),
	"PLATINUM": decimal.New(12, -2),
}

func TierRate(tier string) decimal.Decimal {
	if rate, ok := commissionRates[tier]; ok {
		return rate
	}
	return commissionRates["BRONZE"]
}
