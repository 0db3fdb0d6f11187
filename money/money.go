// Package money renders monetary amounts with two decimals, rounding half
// up on arbitrary-precision decimals.
package money

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"gopkg.in/inf.v0"
)

// Scale is the number of decimals money is rendered with.
const Scale inf.Scale = 2

// Zero is the rendering of a missing amount.
const Zero = json.Number("0.00")

// Registry is a case-sensitive set of monetary field names.
type Registry map[string]struct{}

// NewRegistry builds a registry from names.
func NewRegistry(names ...string) Registry {
	r := make(Registry, len(names))
	for _, n := range names {
		r[n] = struct{}{}
	}
	return r
}

// Default holds the field names that carry money across the shop schema.
// Physical measurements (height, width, length, weight) are not money.
var Default = NewRegistry(
	"price", "sale_price", "cost_price", "compare_at_price",
	"unit_price", "total_price",
	"subtotal", "discount", "discount_amount", "discount_value",
	"min_order_amount", "max_discount_amount",
	"tax", "tax_amount", "shipping_fee", "service_fee", "gateway_fee", "fee",
	"total", "total_amount", "amount", "refunded_amount",
	"commission", "commission_amount", "earnings", "balance",
)

// With returns a new registry holding r's names plus names.
func (r Registry) With(names ...string) Registry {
	out := make(Registry, len(r)+len(names))
	for n := range r {
		out[n] = struct{}{}
	}
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

// Has reports whether name is monetary.
func (r Registry) Has(name string) bool {
	_, ok := r[name]
	return ok
}

// FormatDict returns a copy of d with every monetary key rounded to two
// decimals. Nil amounts become 0.00. Values that are not numbers and
// non-monetary keys are copied unchanged. Nested maps are not traversed.
func (r Registry) FormatDict(d map[string]interface{}) map[string]interface{} {
	if d == nil {
		return nil
	}
	out := make(map[string]interface{}, len(d))
	for k, v := range d {
		if !r.Has(k) {
			out[k] = v
			continue
		}
		formatted, err := FormatDecimal(v)
		if err != nil {
			out[k] = v
			continue
		}
		out[k] = formatted
	}
	return out
}

// FormatDict formats d with the Default registry.
func FormatDict(d map[string]interface{}) map[string]interface{} {
	return Default.FormatDict(d)
}

// FormatDecimal rounds v half up to two decimals. Floats are converted
// through their shortest decimal representation, so 10.565 rounds to 10.57.
func FormatDecimal(v interface{}) (json.Number, error) {
	d, err := toDec(v)
	if err != nil {
		return "", err
	}
	if d == nil {
		return Zero, nil
	}
	return json.Number(new(inf.Dec).Round(d, Scale, inf.RoundHalfUp).String()), nil
}

func toDec(v interface{}) (*inf.Dec, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case *inf.Dec:
		if x == nil {
			return nil, nil
		}
		return x, nil
	case inf.Dec:
		return &x, nil
	case *big.Int:
		if x == nil {
			return nil, nil
		}
		return new(inf.Dec).SetUnscaledBig(x), nil
	case int:
		return inf.NewDec(int64(x), 0), nil
	case int8:
		return inf.NewDec(int64(x), 0), nil
	case int16:
		return inf.NewDec(int64(x), 0), nil
	case int32:
		return inf.NewDec(int64(x), 0), nil
	case int64:
		return inf.NewDec(x, 0), nil
	case uint8:
		return inf.NewDec(int64(x), 0), nil
	case uint16:
		return inf.NewDec(int64(x), 0), nil
	case uint32:
		return inf.NewDec(int64(x), 0), nil
	case uint64:
		return parseDec(strconv.FormatUint(x, 10))
	case float32:
		return parseDec(strconv.FormatFloat(float64(x), 'f', -1, 32))
	case float64:
		return parseDec(strconv.FormatFloat(x, 'f', -1, 64))
	case json.Number:
		return parseDec(string(x))
	case string:
		return parseDec(x)
	case []byte:
		return parseDec(string(x))
	case fmt.Stringer:
		return parseDec(x.String())
	default:
		return nil, fmt.Errorf("unsupported monetary value type %T", v)
	}
}

func parseDec(s string) (*inf.Dec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, ok := new(inf.Dec).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid monetary value %q", s)
	}
	return d, nil
}
