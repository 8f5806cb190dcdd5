package quote

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/exchange-bridge/internal/config"
	"github.com/shopspring/decimal"
)

var ErrRateUnavailable = errors.New("exchange rate unavailable")

// RateSource supplies the conversion rate from base to target currency
type RateSource interface {
	Rate(ctx context.Context, base, target string) (decimal.Decimal, error)
}

// Rate is one configured currency pair
type Rate struct {
	Base   string          `json:"base"`
	Target string          `json:"target"`
	Rate   decimal.Decimal `json:"rate"`
}

type pair struct{ base, target string }

// StaticRateSource serves rates fixed at startup from configuration
type StaticRateSource struct {
	rates map[pair]decimal.Decimal
}

// NewStaticRateSource builds the USD/MZN pairs from configuration
func NewStaticRateSource(cfg config.ExchangeConfig) *StaticRateSource {
	return NewStaticRateSourceFromRates([]Rate{
		{Base: cfg.EWalletCurrency, Target: cfg.MobileMoneyCurrency, Rate: cfg.RateUSDToMZN},
		{Base: cfg.MobileMoneyCurrency, Target: cfg.EWalletCurrency, Rate: cfg.RateMZNToUSD},
	})
}

func NewStaticRateSourceFromRates(rates []Rate) *StaticRateSource {
	s := &StaticRateSource{rates: make(map[pair]decimal.Decimal, len(rates))}
	for _, r := range rates {
		s.rates[pair{r.Base, r.Target}] = r.Rate
	}
	return s
}

func (s *StaticRateSource) Rate(_ context.Context, base, target string) (decimal.Decimal, error) {
	if base == target {
		return decimal.NewFromInt(1), nil
	}
	r, ok := s.rates[pair{base, target}]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s/%s", ErrRateUnavailable, base, target)
	}
	return r, nil
}

// Pairs lists the configured rates in a stable order
func (s *StaticRateSource) Pairs() []Rate {
	out := make([]Rate, 0, len(s.rates))
	for p, r := range s.rates {
		out = append(out, Rate{Base: p.base, Target: p.target, Rate: r})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Base != out[j].Base {
			return out[i].Base < out[j].Base
		}
		return out[i].Target < out[j].Target
	})
	return out
}
