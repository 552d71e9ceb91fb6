package database

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ToDecimal128 converts a domain amount into its BSON representation.
func ToDecimal128(d decimal.Decimal) primitive.Decimal128 {
	out, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		// decimal.Decimal always formats to a valid decimal string
		panic(fmt.Sprintf("unrepresentable decimal %q: %v", d.String(), err))
	}
	return out
}

// FromDecimal128 converts a stored BSON decimal back into a domain amount.
func FromDecimal128(d primitive.Decimal128) (decimal.Decimal, error) {
	out, err := decimal.NewFromString(d.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode decimal %q: %w", d.String(), err)
	}
	return out, nil
}
