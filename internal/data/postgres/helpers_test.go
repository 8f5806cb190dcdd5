package postgres

import (
	"log/slog"
	"os"
	"time"

	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/exchange-bridge/internal/domain/transfer"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// anyArgs matches n arguments of any value
func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

// newTestTransaction builds the 100 USD wallet-to-mobile transfer used across tests
func newTestTransaction(at time.Time) *transfer.Transaction {
	t, err := transfer.New(transfer.NewParams{
		UserID:    "user-1",
		Direction: shared.DirectionWalletToMobile,
		Amounts: transfer.Amounts{
			SourceAmount:        decimal.RequireFromString("100"),
			SourceCurrency:      "USD",
			DestinationAmount:   decimal.RequireFromString("6350"),
			DestinationCurrency: "MZN",
			ExchangeRate:        decimal.RequireFromString("63.5"),
			Fee: transfer.Fee{
				Percentage: decimal.RequireFromString("2"),
				Fixed:      decimal.RequireFromString("0.5"),
				Total:      decimal.RequireFromString("2.5"),
				Currency:   "USD",
			},
			NetAmount:        decimal.RequireFromString("6191.25"),
			SettlementAmount: decimal.RequireFromString("100"),
		},
		Source:       transfer.LegEndpoint{Provider: string(shared.NetworkEWallet), AccountIdentifier: "buyer@example.com"},
		Destination:  transfer.LegEndpoint{Provider: string(shared.NetworkMobileMoney), AccountIdentifier: "258841234567"},
		OTPHash:      "$2a$04$hash",
		OTPExpiresAt: at.Add(5 * time.Minute),
	}, at)
	if err != nil {
		panic(err)
	}
	return t
}
