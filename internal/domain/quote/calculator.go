// Package quote prices a transfer: exchange rate, fee breakdown and the amount
// counted against the user's limits.
package quote

import (
	"context"
	"time"

	"github.com/exchange-bridge/internal/config"
	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/exchange-bridge/internal/domain/transfer"
	"github.com/shopspring/decimal"
)

const (
	amountPlaces = 2
	ratePlaces   = 4
)

var hundred = decimal.NewFromInt(100)

// Quote is a priced transfer, valid until ValidUntil
type Quote struct {
	Direction shared.Direction `json:"direction"`
	transfer.Amounts
	ValidUntil time.Time `json:"valid_until"`
}

// Calculator prices transfers from a RateSource and the configured fee schedule
type Calculator struct {
	rates RateSource
	cfg   config.ExchangeConfig
	now   func() time.Time
}

func NewCalculator(rates RateSource, cfg config.ExchangeConfig) *Calculator {
	return &Calculator{rates: rates, cfg: cfg, now: time.Now}
}

// Currency returns the currency a network settles in
func (c *Calculator) Currency(n shared.Network) string {
	if n == shared.NetworkMobileMoney {
		return c.cfg.MobileMoneyCurrency
	}
	return c.cfg.EWalletCurrency
}

// Quote prices amount (in the source network's currency) for the direction.
// The fee is charged in the settlement currency and deducted from the destination amount.
func (c *Calculator) Quote(ctx context.Context, direction shared.Direction, amount decimal.Decimal) (*Quote, error) {
	if !direction.Valid() {
		return nil, shared.ValidationError{Field: "direction", Message: "must be WALLET_TO_MOBILE or MOBILE_TO_WALLET"}
	}
	if !amount.IsPositive() {
		return nil, shared.ValidationError{Field: "amount", Message: "must be positive"}
	}
	if amount.LessThan(c.cfg.MinimumAmount) {
		return nil, shared.ValidationError{Field: "amount", Message: "must be at least " + c.cfg.MinimumAmount.String()}
	}

	src := c.Currency(direction.SourceNetwork())
	dst := c.Currency(direction.DestinationNetwork())
	settlement := c.cfg.SettlementCurrency

	rate, err := c.rates.Rate(ctx, src, dst)
	if err != nil {
		return nil, err
	}
	rate = rate.Round(ratePlaces)
	amount = amount.Round(amountPlaces)
	destination := amount.Mul(rate).Round(amountPlaces)

	sourceInSettlement, err := c.convert(ctx, amount, src, settlement)
	if err != nil {
		return nil, err
	}
	feeTotal := sourceInSettlement.Mul(c.cfg.FeePercentage).Div(hundred).Add(c.cfg.FixedFee).Round(amountPlaces)

	feeInDestination, err := c.convert(ctx, feeTotal, settlement, dst)
	if err != nil {
		return nil, err
	}
	net := destination.Sub(feeInDestination).Round(amountPlaces)
	if !net.IsPositive() {
		return nil, shared.ValidationError{Field: "amount", Message: "too small to cover fees"}
	}

	settlementAmount := amount
	if dst == settlement {
		settlementAmount = destination
	} else if src != settlement {
		settlementAmount = sourceInSettlement
	}

	return &Quote{
		Direction: direction,
		Amounts: transfer.Amounts{
			SourceAmount:        amount,
			SourceCurrency:      src,
			DestinationAmount:   destination,
			DestinationCurrency: dst,
			ExchangeRate:        rate,
			Fee: transfer.Fee{
				Percentage: c.cfg.FeePercentage,
				Fixed:      c.cfg.FixedFee,
				Total:      feeTotal,
				Currency:   settlement,
			},
			NetAmount:        net,
			SettlementAmount: settlementAmount,
		},
		ValidUntil: c.now().Add(c.cfg.QuoteValidity),
	}, nil
}

func (c *Calculator) convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}
	r, err := c.rates.Rate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(r.Round(ratePlaces)).Round(amountPlaces), nil
}
