package interfaces

import "time"

// Calendar decides which dates are trading days.
type Calendar interface {
	IsTradingDay(date time.Time) bool
	TradingDays(from, to time.Time) []time.Time
}
