package metadata

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ruteri/content-service-backend/interfaces"
)

// dateTimeLayouts are tried in order when coercing strings to DateTime.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// Coerce converts a raw submitted value to the requested property type.
// Coercion is explicit and fallible: a string "12" coerces to Number, a
// bool never does.
func Coerce(raw any, t interfaces.PropertyType) (interfaces.PropertyValue, error) {
	if pv, ok := raw.(interfaces.PropertyValue); ok {
		if pv.Type == t {
			return pv, nil
		}
		raw = pv.Interface()
	}

	switch t {
	case interfaces.PropertyString:
		return interfaces.StringValue(toString(raw)), nil
	case interfaces.PropertyNumber:
		n, err := toNumber(raw)
		if err != nil {
			return interfaces.PropertyValue{}, err
		}
		return interfaces.NumberValue(n), nil
	case interfaces.PropertyDateTime:
		ts, err := toDateTime(raw)
		if err != nil {
			return interfaces.PropertyValue{}, err
		}
		return interfaces.DateTimeValue(ts), nil
	case interfaces.PropertyBoolean:
		b, err := toBoolean(raw)
		if err != nil {
			return interfaces.PropertyValue{}, err
		}
		return interfaces.BooleanValue(b), nil
	default:
		return interfaces.PropertyValue{}, fmt.Errorf("unsupported property type %q", t)
	}
}

// Infer maps a raw value to the property type its Go type naturally implies.
func Infer(raw any) interfaces.PropertyValue {
	switch v := raw.(type) {
	case interfaces.PropertyValue:
		return v
	case bool:
		return interfaces.BooleanValue(v)
	case time.Time:
		return interfaces.DateTimeValue(v)
	case string:
		return interfaces.StringValue(v)
	}
	if n, err := toNumber(raw); err == nil {
		return interfaces.NumberValue(n)
	}
	return interfaces.StringValue(toString(raw))
}

// SortedNames returns the keys of props in lexical order, giving map-shaped
// input a stable insertion order.
func SortedNames[V any](props map[string]V) []string {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func toString(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// toNumber accepts finite numbers only; NaN and infinities cannot be stored.
func toNumber(raw any) (float64, error) {
	n, err := parseNumber(raw)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("value %v is not a finite number", raw)
	}
	return n, nil
}

func parseNumber(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not a number", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("value of type %T is not a number", raw)
	}
}

func toDateTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range dateTimeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, fmt.Errorf("value %q is not a date-time", v)
	default:
		return time.Time{}, fmt.Errorf("value of type %T is not a date-time", raw)
	}
}

func toBoolean(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("value %q is not a boolean", v)
		}
		return b, nil
	default:
		return false, fmt.Errorf("value of type %T is not a boolean", raw)
	}
}
