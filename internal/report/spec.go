// Package report turns extracted tables into aggregate report tables.
//
// A report is data, not code: a Spec names the source table, an optional
// left join, derived columns, the group-by keys, the sort order and a limit.
// Build interprets any Spec with the same join → derive → group → count →
// sort → limit pipeline.
package report

import (
	"fmt"
	"strings"
)

// Derive function names.
const (
	FuncConcat = "concat"
	FuncYear   = "year"
)

// DefaultCountColumn names the aggregate column when a Spec leaves it empty.
const DefaultCountColumn = "count"

// Join is a left outer join on a single equality key.
type Join struct {
	Table    string `json:"table" yaml:"table"`
	LeftKey  string `json:"left_key" yaml:"left_key"`
	RightKey string `json:"right_key" yaml:"right_key"`
}

// Derive adds a computed column.
//
//	concat: joins the non-NULL Args columns with Sep
//	year:   4-digit UTC year of the single Args column, NULL stays NULL
type Derive struct {
	Column string   `json:"column" yaml:"column"`
	Func   string   `json:"func" yaml:"func"`
	Args   []string `json:"args" yaml:"args"`
	Sep    string   `json:"sep,omitempty" yaml:"sep,omitempty"`
}

// SortKey orders result rows by one column.
type SortKey struct {
	Column string `json:"column" yaml:"column"`
	Desc   bool   `json:"desc,omitempty" yaml:"desc,omitempty"`
}

// Spec declares one report. Name doubles as the warehouse table name.
type Spec struct {
	Name        string    `json:"name" yaml:"name"`
	Source      string    `json:"source" yaml:"source"`
	Join        *Join     `json:"join,omitempty" yaml:"join,omitempty"`
	Derive      []Derive  `json:"derive,omitempty" yaml:"derive,omitempty"`
	GroupBy     []string  `json:"group_by" yaml:"group_by"`
	CountColumn string    `json:"count_column,omitempty" yaml:"count_column,omitempty"`
	Sort        []SortKey `json:"sort,omitempty" yaml:"sort,omitempty"`
	Limit       int       `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// Count returns the name of the count column.
func (s Spec) Count() string {
	if s.CountColumn == "" {
		return DefaultCountColumn
	}
	return s.CountColumn
}

// Inputs returns the tables the report reads: the source, then the join
// table if any.
func (s Spec) Inputs() []string {
	in := []string{s.Source}
	if s.Join != nil {
		in = append(in, s.Join.Table)
	}
	return in
}

// Validate checks the report definition for structural mistakes. It does not
// look at any table, so a column that does not exist is only caught by Build.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("report: name is required")
	}
	if strings.TrimSpace(s.Source) == "" {
		return fmt.Errorf("report %s: source is required", s.Name)
	}
	if j := s.Join; j != nil {
		if j.Table == "" || j.LeftKey == "" || j.RightKey == "" {
			return fmt.Errorf("report %s: join needs table, left_key and right_key", s.Name)
		}
	}
	derived := make(map[string]struct{}, len(s.Derive))
	for i, d := range s.Derive {
		if d.Column == "" {
			return fmt.Errorf("report %s: derive[%d]: column is required", s.Name, i)
		}
		if _, dup := derived[d.Column]; dup {
			return fmt.Errorf("report %s: derive[%d]: column %s derived twice", s.Name, i, d.Column)
		}
		derived[d.Column] = struct{}{}
		switch d.Func {
		case FuncConcat:
			if len(d.Args) == 0 {
				return fmt.Errorf("report %s: derive %s: concat needs at least one argument", s.Name, d.Column)
			}
		case FuncYear:
			if len(d.Args) != 1 {
				return fmt.Errorf("report %s: derive %s: year takes exactly one argument", s.Name, d.Column)
			}
		default:
			return fmt.Errorf("report %s: derive %s: unknown func %q", s.Name, d.Column, d.Func)
		}
	}
	if len(s.GroupBy) == 0 {
		return fmt.Errorf("report %s: at least one group_by column is required", s.Name)
	}
	keys := make(map[string]struct{}, len(s.GroupBy))
	for _, k := range s.GroupBy {
		if k == "" {
			return fmt.Errorf("report %s: empty group_by column", s.Name)
		}
		if _, dup := keys[k]; dup {
			return fmt.Errorf("report %s: group_by column %s listed twice", s.Name, k)
		}
		if k == s.Count() {
			return fmt.Errorf("report %s: group_by column %s collides with the count column", s.Name, k)
		}
		keys[k] = struct{}{}
	}
	for _, sk := range s.Sort {
		if _, ok := keys[sk.Column]; !ok && sk.Column != s.Count() {
			return fmt.Errorf("report %s: sort column %s is neither a group_by column nor %s", s.Name, sk.Column, s.Count())
		}
	}
	if s.Limit < 0 {
		return fmt.Errorf("report %s: limit must be >= 0, got %d", s.Name, s.Limit)
	}
	return nil
}
