package domain

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Cartons is a discrete count of stock units. All stock counters and
// allocation quantities are expressed in cartons.
type Cartons int64

func (c Cartons) Value() (driver.Value, error) {
	return int64(c), nil
}

// Weight returns the nominal weight of c cartons at perUnit each.
func (c Cartons) Weight(perUnit Weight) Weight {
	return Weight{kg: perUnit.kg.Mul(decimal.NewFromInt(int64(c)))}
}

// Weight is a mass in kilograms. It is deliberately not convertible to
// Cartons; use Cartons.Weight to go from a count to a mass.
type Weight struct {
	kg decimal.Decimal
}

func Kilograms(kg decimal.Decimal) Weight {
	return Weight{kg: kg}
}

func ParseKilograms(raw string) (Weight, error) {
	kg, err := decimal.NewFromString(raw)
	if err != nil {
		return Weight{}, fmt.Errorf("parse weight %q: %w", raw, err)
	}
	return Weight{kg: kg}, nil
}

// MustKilograms is ParseKilograms for literals known to be valid.
func MustKilograms(raw string) Weight {
	w, err := ParseKilograms(raw)
	if err != nil {
		panic(err)
	}
	return w
}

func (w Weight) Kilograms() decimal.Decimal {
	return w.kg
}

func (w Weight) Add(other Weight) Weight {
	return Weight{kg: w.kg.Add(other.kg)}
}

func (w Weight) Sub(other Weight) Weight {
	return Weight{kg: w.kg.Sub(other.kg)}
}

func (w Weight) Equal(other Weight) bool {
	return w.kg.Equal(other.kg)
}

func (w Weight) IsPositive() bool {
	return w.kg.IsPositive()
}

func (w Weight) IsNegative() bool {
	return w.kg.IsNegative()
}

func (w Weight) String() string {
	return w.kg.StringFixed(3)
}

func (w Weight) MarshalJSON() ([]byte, error) {
	return w.kg.MarshalJSON()
}

func (w *Weight) UnmarshalJSON(data []byte) error {
	return w.kg.UnmarshalJSON(data)
}

func (w *Weight) Scan(src any) error {
	return w.kg.Scan(src)
}

func (w Weight) Value() (driver.Value, error) {
	return w.kg.Value()
}
