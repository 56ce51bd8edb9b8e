package domain

import "github.com/shopspring/decimal"

// OfferType tells which side of the trade the maker is on.
type OfferType string

const (
	OfferTypeBuy  OfferType = "BUY"
	OfferTypeSell OfferType = "SELL"
)

// Offer holds the immutable terms published by the maker.
type Offer struct {
	Id                 string          `json:"id"`
	Type               OfferType       `json:"type"`
	MakerProfilePubKey []byte          `json:"makerProfilePubKey"`
	CurrencyCode       string          `json:"currencyCode"`
	PaymentMethod      string          `json:"paymentMethod"`
	Price              decimal.Decimal `json:"price"`
	MinAmount          decimal.Decimal `json:"minAmount"`
	MaxAmount          decimal.Decimal `json:"maxAmount"`
	IsMine             bool            `json:"-"`
}

// CurrencyMaxTradeAmount caps the fiat payment amount of a single trade per
// currency, regardless of the offer's own maximum.
var CurrencyMaxTradeAmount = map[string]decimal.Decimal{
	"USD": decimal.NewFromInt(1000),
	"EUR": decimal.NewFromInt(1000),
	"CAD": decimal.NewFromInt(1500),
	"AUD": decimal.NewFromInt(1500),
	"CHF": decimal.NewFromInt(1000),
	"GBP": decimal.NewFromInt(800),
}

// PaymentAmount computes the fiat amount due for the given bitcoin amount at
// the offer's price, rounded to two decimals.
func (o *Offer) PaymentAmount(btcAmount decimal.Decimal) decimal.Decimal {
	return o.Price.Mul(btcAmount).Round(2)
}

// ValidateAmount checks the fiat payment amount for btcAmount against the
// offer's bounds and the per-currency cap.
func (o *Offer) ValidateAmount(btcAmount decimal.Decimal) error {
	payment := o.PaymentAmount(btcAmount)

	max := o.MaxAmount
	if cap, ok := CurrencyMaxTradeAmount[o.CurrencyCode]; ok && cap.LessThan(max) {
		max = cap
	}
	if payment.LessThan(o.MinAmount) || payment.GreaterThan(max) {
		return ErrAmountOutOfBounds
	}
	return nil
}
