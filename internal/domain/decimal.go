package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Decimal is a wrapper around apd.Decimal used for scraped instrument metadata
// (reference close, market capitalization, shares outstanding) so that values
// such as "2.5B" expand exactly instead of going through float rounding.
type Decimal struct {
	apd.Decimal
}

// DefaultContext is the base context for rounding operations.
var DefaultContext = apd.BaseContext.WithPrecision(34)

// Zero constant for convenience
var Zero = NewDecimalFromInt(0)

// NewDecimalFromInt creates a Decimal from an int64
func NewDecimalFromInt(v int64) Decimal {
	d := Decimal{}
	d.SetInt64(v)
	return d
}

// NewDecimalFromString creates a Decimal from a string
func NewDecimalFromString(v string) (Decimal, error) {
	d := Decimal{}
	_, _, err := d.SetString(v)
	if err != nil {
		return d, fmt.Errorf("invalid decimal string %s: %w", v, err)
	}
	return d, nil
}

// String implements the fmt.Stringer interface.
func (d Decimal) String() string {
	return d.Decimal.Text('f')
}

// Float64 returns the closest float64 value. Unrepresentable values yield 0.
func (d Decimal) Float64() float64 {
	f, err := d.Decimal.Float64()
	if err != nil {
		return 0
	}
	return f
}

// Value implements the driver.Valuer interface for database serialization.
func (d Decimal) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (d *Decimal) Scan(value interface{}) error {
	if value == nil {
		d.SetInt64(0)
		return nil
	}

	switch v := value.(type) {
	case []byte:
		_, _, err := d.SetString(string(v))
		return err
	case string:
		_, _, err := d.SetString(v)
		return err
	case int64:
		d.SetInt64(v)
		return nil
	case float64:
		_, err := d.SetFloat64(v)
		return err
	default:
		return fmt.Errorf("unsupported type for Decimal scan: %T", value)
	}
}

func (d Decimal) IsZero() bool {
	return d.Decimal.IsZero()
}

func (d Decimal) Cmp(other Decimal) int {
	return d.Decimal.Cmp(&other.Decimal)
}

// Truncate drops the fractional part, rounding toward zero.
func (d Decimal) Truncate() (Decimal, error) {
	res := Decimal{}
	ctx := *DefaultContext
	ctx.Rounding = apd.RoundDown
	if _, err := ctx.Quantize(&res.Decimal, &d.Decimal, 0); err != nil {
		return res, fmt.Errorf("quantize operation failed: %w", err)
	}
	return res, nil
}

// MarshalJSON implements the json.Marshaler interface.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (d *Decimal) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) > 1 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "null" || s == "" {
		d.SetInt64(0)
		return nil
	}
	_, _, err := d.SetString(s)
	return err
}

// unitExponents maps magnitude suffixes to powers of ten.
var unitExponents = map[byte]int32{
	'K': 3,
	'M': 6,
	'B': 9,
	'T': 12,
}

// ParseUnitDecimal parses a number that may carry a thousand/million/billion/trillion
// suffix ("2.5B", "750M", "1,234") and returns its integral value.
// Thousands separators and spaces are ignored.
func ParseUnitDecimal(s string) (Decimal, error) {
	clean := strings.NewReplacer(",", "", " ", "").Replace(strings.TrimSpace(s))
	if clean == "" {
		return Zero, fmt.Errorf("empty number")
	}

	var shift int32
	if exp, ok := unitExponents[strings.ToUpper(clean[len(clean)-1:])[0]]; ok {
		shift = exp
		clean = clean[:len(clean)-1]
	}

	d, err := NewDecimalFromString(clean)
	if err != nil {
		return Zero, err
	}
	d.Exponent += shift

	return d.Truncate()
}

// ParseDecimal parses a plain number, ignoring thousands separators and spaces.
func ParseDecimal(s string) (Decimal, error) {
	clean := strings.NewReplacer(",", "", " ", "").Replace(strings.TrimSpace(s))
	return NewDecimalFromString(clean)
}
