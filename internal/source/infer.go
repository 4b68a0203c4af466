package source

import (
	"math"
	"strconv"
	"strings"

	"promoetl/internal/table"
)

// InferType guesses the narrowest logical type every non-empty value fits,
// trying integer, boolean, real and timestamp in that order and falling back
// to text. Dates without a time of day are timestamps at midnight UTC. A
// column with no non-empty values is text.
func InferType(values []string) table.Type {
	nonEmpty := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			nonEmpty = append(nonEmpty, v)
		}
	}
	if len(nonEmpty) == 0 {
		return table.Text
	}
	switch {
	case allMatch(nonEmpty, isInt):
		return table.Integer
	case allMatch(nonEmpty, isBool):
		return table.Boolean
	case allMatch(nonEmpty, isFloat):
		return table.Real
	case allMatch(nonEmpty, isTimestamp):
		return table.Timestamp
	default:
		return table.Text
	}
}

func allMatch(vals []string, fn func(string) bool) bool {
	for _, v := range vals {
		if !fn(v) {
			return false
		}
	}
	return true
}

func isInt(s string) bool {
	_, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return err == nil
}

func isBool(s string) bool {
	_, err := table.ParseBool(s)
	return err == nil
}

// isFloat accepts finite decimal or scientific notation; integers also pass
// so a column mixing "1" and "2.5" is real. "NaN" and "Inf" stay text.
func isFloat(s string) bool {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
}

func isTimestamp(s string) bool {
	_, _, err := table.ParseTimestamp(s)
	return err == nil
}
