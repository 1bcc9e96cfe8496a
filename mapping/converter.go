package mapping

import (
	"fmt"
	"strings"
	"time"
)

// Converter translates a field value between its Go form and its storage form.
// Operands of derived queries are passed through ToStorage before they reach
// a backend; values read back are passed through FromStorage.
type Converter interface {
	ToStorage(v any) (any, error)
	FromStorage(v any) (any, error)
}

// ConverterFuncs adapts a pair of functions to Converter. A nil function
// passes values through unchanged.
type ConverterFuncs struct {
	To   func(any) (any, error)
	From func(any) (any, error)
}

func (c ConverterFuncs) ToStorage(v any) (any, error) {
	if c.To == nil {
		return v, nil
	}
	return c.To(v)
}

func (c ConverterFuncs) FromStorage(v any) (any, error) {
	if c.From == nil {
		return v, nil
	}
	return c.From(v)
}

func stringConverter(fn func(string) string) Converter {
	return ConverterFuncs{
		To: func(v any) (any, error) {
			if v == nil {
				return nil, nil
			}
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: want string, got %T", ErrConversion, v)
			}
			return fn(s), nil
		},
	}
}

// unixConverter stores time.Time values as Unix seconds.
var unixConverter = ConverterFuncs{
	To: func(v any) (any, error) {
		switch t := v.(type) {
		case nil:
			return nil, nil
		case time.Time:
			return t.Unix(), nil
		case *time.Time:
			if t == nil {
				return nil, nil
			}
			return t.Unix(), nil
		default:
			return nil, fmt.Errorf("%w: want time.Time, got %T", ErrConversion, v)
		}
	},
	From: func(v any) (any, error) {
		switch n := v.(type) {
		case nil:
			return nil, nil
		case int64:
			return time.Unix(n, 0).UTC(), nil
		case float64:
			return time.Unix(int64(n), 0).UTC(), nil
		case time.Time:
			return n, nil
		default:
			return nil, fmt.Errorf("%w: want unix seconds, got %T", ErrConversion, v)
		}
	},
}

// BuiltinConverters returns the converters available to every entity:
//   - upper, lower, trim: normalize strings on the way into storage
//   - unix: time.Time stored as Unix seconds
func BuiltinConverters() map[string]Converter {
	return map[string]Converter{
		"upper": stringConverter(strings.ToUpper),
		"lower": stringConverter(strings.ToLower),
		"trim":  stringConverter(strings.TrimSpace),
		"unix":  unixConverter,
	}
}
