package services

import (
	"time"

	"lokalpay/internal/store"
)

// SpendPeriod is the billing period a spend counter belongs to. Counters are
// never reset by a timer: a counter whose stored period differs from the
// current one simply reads as zero and is rewritten with the current period
// key on the next spend.
type SpendPeriod struct {
	Daily   string
	Monthly string
}

func CurrentPeriod(now time.Time) SpendPeriod {
	utc := now.UTC()
	return SpendPeriod{
		Daily:   utc.Format("2006-01-02"),
		Monthly: utc.Format("2006-01"),
	}
}

// EffectiveDailySpent returns the wallet's daily spend within the current
// period, treating a stale counter as zero.
func EffectiveDailySpent(wallet store.Wallet, period SpendPeriod) int64 {
	if wallet.DailyPeriod != period.Daily {
		return 0
	}
	return wallet.DailySpent
}

func EffectiveMonthlySpent(wallet store.Wallet, period SpendPeriod) int64 {
	if wallet.MonthlyPeriod != period.Monthly {
		return 0
	}
	return wallet.MonthlySpent
}
