package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/btcescrow/escrowd/internal/core/domain"
)

func TestPaymentAmount(t *testing.T) {
	offer := newSellOffer()

	amount := offer.PaymentAmount(decimal.NewFromFloat(0.0013333))
	require.True(t, decimal.NewFromFloat(66.67).Equal(amount))
}

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name      string
		btcAmount decimal.Decimal
		wantErr   bool
	}{
		{"within_bounds", decimal.NewFromFloat(0.002), false},
		{"at_minimum", decimal.NewFromFloat(0.0002), false},
		{"below_minimum", decimal.NewFromFloat(0.0001), true},
		{"above_offer_maximum", decimal.NewFromFloat(0.011), true},
	}

	offer := newSellOffer()
	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			err := offer.ValidateAmount(tt.btcAmount)
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrAmountOutOfBounds)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// The per-currency cap binds even when the offer's own maximum is higher.
func TestValidateAmountCurrencyCap(t *testing.T) {
	offer := newSellOffer()
	offer.MaxAmount = decimal.NewFromInt(100000)

	// 0.025 BTC at 50000 = 1250 fiat, above the 1000 USD cap
	err := offer.ValidateAmount(decimal.NewFromFloat(0.025))
	require.ErrorIs(t, err, domain.ErrAmountOutOfBounds)

	offer.CurrencyCode = "XXX"
	require.NoError(t, offer.ValidateAmount(decimal.NewFromFloat(0.025)))
}
