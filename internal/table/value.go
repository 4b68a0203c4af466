package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are accepted for timestamp columns without a time component.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02.01.2006",
	"20060102",
}

// timestampLayouts are accepted for timestamp columns. Values without a zone
// are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 -0700 MST",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006/01/02 15:04:05",
}

// ParseTimestamp parses s with the known timestamp and date layouts. The
// result is always in UTC. hasTime reports whether s carried a time of day.
func ParseTimestamp(s string) (ts time.Time, hasTime bool, err error) {
	st := strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, st); err == nil {
			return t.UTC(), true, nil
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, st); err == nil {
			return t.UTC(), false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("unrecognized timestamp %q", s)
}

// ParseBool accepts the usual textual booleans.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "1":
		return true, nil
	case "false", "f", "no", "n", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", s)
	}
}

// Coerce converts a raw text cell into a value of type t. Empty cells are
// NULL for every type except text, where only a truly empty string is NULL.
func Coerce(t Type, raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	switch t {
	case Text:
		return raw, nil
	case Integer:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", raw)
		}
		return n, nil
	case Real:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid real %q", raw)
		}
		return f, nil
	case Boolean:
		return ParseBool(raw)
	case Timestamp:
		ts, _, err := ParseTimestamp(raw)
		if err != nil {
			return nil, err
		}
		return ts, nil
	default:
		return nil, fmt.Errorf("unknown column type %q", t)
	}
}

// Normalize converts a value returned by a database driver into the canonical
// Go representation for type t. Drivers disagree on widths (int32 vs int64),
// on byte slices vs strings and on whether timestamps arrive parsed.
func Normalize(t Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case Text:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		default:
			return fmt.Sprint(x), nil
		}
	case Integer:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case int16:
			return int64(x), nil
		case int8:
			return int64(x), nil
		case uint8:
			return int64(x), nil
		case uint16:
			return int64(x), nil
		case uint32:
			return int64(x), nil
		case float64:
			if x != math.Trunc(x) {
				return nil, fmt.Errorf("non-integral value %v for integer column", x)
			}
			return int64(x), nil
		case []byte:
			return Coerce(Integer, string(x))
		case string:
			return Coerce(Integer, x)
		}
	case Real:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case int32:
			return float64(x), nil
		case int:
			return float64(x), nil
		case []byte:
			return Coerce(Real, string(x))
		case string:
			return Coerce(Real, x)
		}
	case Boolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case []byte:
			return ParseBool(string(x))
		case string:
			return ParseBool(x)
		}
	case Timestamp:
		switch x := v.(type) {
		case time.Time:
			return x.UTC(), nil
		case []byte:
			return Coerce(Timestamp, string(x))
		case string:
			return Coerce(Timestamp, x)
		}
	default:
		return nil, fmt.Errorf("unknown column type %q", t)
	}
	return nil, fmt.Errorf("cannot use %T as %s", v, t)
}

// Compare orders two values of the same column. NULL sorts before any
// non-NULL value. Values of different Go types compare by their type name so
// the order stays total.
func Compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case int64:
		if y, ok := b.(int64); ok {
			return cmpOrdered(x, y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmpOrdered(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	}
	return strings.Compare(fmt.Sprintf("%T", a), fmt.Sprintf("%T", b))
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Format renders a value for display and fingerprinting. NULL renders as the
// empty string; check for nil to tell the two apart.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

func typeOf(v any) (Type, bool) {
	switch v.(type) {
	case string:
		return Text, true
	case int64:
		return Integer, true
	case float64:
		return Real, true
	case bool:
		return Boolean, true
	case time.Time:
		return Timestamp, true
	default:
		return "", false
	}
}
