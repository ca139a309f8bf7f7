// Package pricehttp fetches daily bars from a REST price service. Server
// side failures and transport errors are marked transient so the caller's
// retry policy handles them; client errors are final.
package pricehttp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"llm-day-trader/internal/interfaces"
	"llm-day-trader/internal/retry"
	"llm-day-trader/internal/types"
)

type Source struct {
	client *resty.Client
}

var _ interfaces.PriceSource = (*Source)(nil)

func NewSource(baseURL string, timeout time.Duration) *Source {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	return &Source{client: client}
}

type dailyResponse struct {
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

func (s *Source) DailyBar(ctx context.Context, symbol string, date time.Time) (types.DailyBar, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": symbol,
			"date":   types.FormatDate(date),
		}).
		Get("/daily")
	if err != nil {
		return types.DailyBar{}, retry.Transient(fmt.Errorf("fetch %s/%s: %w", symbol, types.FormatDate(date), err))
	}

	switch {
	case resp.StatusCode() == 200:
	case resp.StatusCode() >= 500:
		return types.DailyBar{}, retry.Transient(fmt.Errorf("price service %d: %s", resp.StatusCode(), resp.String()))
	default:
		return types.DailyBar{}, fmt.Errorf("price service %d: %s", resp.StatusCode(), resp.String())
	}

	var body dailyResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return types.DailyBar{}, fmt.Errorf("parse price response for %s: %w", symbol, err)
	}
	return types.DailyBar{
		Symbol: symbol, Date: date,
		Open: body.Open, High: body.High, Low: body.Low, Close: body.Close,
		Volume: body.Volume,
	}, nil
}
