// Package limits tracks per-user daily and weekly spend in the settlement currency.
// Capacity is reserved per transaction at confirmation (a hold) and either
// committed when the transfer completes or released when it ends without moving money.
package limits

import (
	"time"

	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// State is a user's limit counters after the lazy calendar reset
type State struct {
	UserID          string          `json:"user_id"`
	DailyLimit      decimal.Decimal `json:"daily_limit"`
	WeeklyLimit     decimal.Decimal `json:"weekly_limit"`
	DailyUsed       decimal.Decimal `json:"daily_used"`
	WeeklyUsed      decimal.Decimal `json:"weekly_used"`
	DailyReserved   decimal.Decimal `json:"daily_reserved"`
	WeeklyReserved  decimal.Decimal `json:"weekly_reserved"`
	LastDailyReset  time.Time       `json:"last_daily_reset"`
	LastWeeklyReset time.Time       `json:"last_weekly_reset"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// DailyAvailable is the headroom left today, never negative
func (s State) DailyAvailable() decimal.Decimal {
	return nonNegative(s.DailyLimit.Sub(s.DailyUsed).Sub(s.DailyReserved))
}

// WeeklyAvailable is the headroom left this week, never negative
func (s State) WeeklyAvailable() decimal.Decimal {
	return nonNegative(s.WeeklyLimit.Sub(s.WeeklyUsed).Sub(s.WeeklyReserved))
}

// Decide checks amount against both windows without changing anything
func (s State) Decide(amount decimal.Decimal) Decision {
	daily, weekly := s.DailyAvailable(), s.WeeklyAvailable()
	return Decision{
		Allowed:         amount.LessThanOrEqual(daily) && amount.LessThanOrEqual(weekly),
		Requested:       amount,
		DailyAvailable:  daily,
		WeeklyAvailable: weekly,
	}
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Decision is the outcome of a limit check
type Decision struct {
	Allowed         bool            `json:"can_proceed"`
	Requested       decimal.Decimal `json:"requested"`
	DailyAvailable  decimal.Decimal `json:"daily_available"`
	WeeklyAvailable decimal.Decimal `json:"weekly_available"`
}

// Err returns a LimitExceededError for a rejected decision
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return shared.LimitExceededError{
		Requested:       d.Requested,
		DailyAvailable:  d.DailyAvailable,
		WeeklyAvailable: d.WeeklyAvailable,
	}
}

// Hold is the capacity reserved for one transaction
type Hold struct {
	TransactionID uuid.UUID         `json:"transaction_id"`
	UserID        string            `json:"user_id"`
	Amount        decimal.Decimal   `json:"amount"`
	Status        shared.HoldStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Window holds the start of the current day and week in the limits calendar
type Window struct {
	DayStart  time.Time
	WeekStart time.Time
}

// WindowAt computes the reset boundaries for now; weeks start on Monday
func WindowAt(now time.Time, loc *time.Location) Window {
	local := now.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	sinceMonday := (int(day.Weekday()) + 6) % 7
	return Window{
		DayStart:  day,
		WeekStart: day.AddDate(0, 0, -sinceMonday),
	}
}

// Defaults are the limits assigned on a user's first transfer
type Defaults struct {
	Daily  decimal.Decimal
	Weekly decimal.Decimal
}
