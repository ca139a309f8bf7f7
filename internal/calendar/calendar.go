// Package calendar decides which dates hold a trading session: weekdays
// minus the configured holiday list.
package calendar

import (
	"time"

	"llm-day-trader/internal/interfaces"
	"llm-day-trader/internal/types"
)

type Calendar struct {
	holidays map[string]bool
}

var _ interfaces.Calendar = (*Calendar)(nil)

func New(holidays []time.Time) *Calendar {
	m := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		m[types.FormatDate(h)] = true
	}
	return &Calendar{holidays: m}
}

func (c *Calendar) IsTradingDay(date time.Time) bool {
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.holidays[types.FormatDate(date)]
}

// TradingDays returns every trading day in [from, to], in order. An inverted
// range yields nil.
func (c *Calendar) TradingDays(from, to time.Time) []time.Time {
	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			days = append(days, d)
		}
	}
	return days
}
