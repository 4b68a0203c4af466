package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"promoetl/internal/etlerr"
	"promoetl/internal/table"
)

// Build evaluates spec against inputs, keyed by table name, and returns the
// report table named spec.Name: the group-by columns followed by the count
// column, sorted and limited as the report declares.
//
// A missing source table is an error. A missing join table is not: every
// right-hand column then reads as NULL.
func Build(spec Spec, inputs map[string]*table.Table) (*table.Table, error) {
	out, err := build(spec, inputs)
	if err != nil {
		return nil, etlerr.Wrap(etlerr.StageBuild, spec.Name, err)
	}
	return out, nil
}

func build(spec Spec, inputs map[string]*table.Table) (*table.Table, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	src := inputs[spec.Source]
	if src == nil {
		return nil, fmt.Errorf("%w: %s", etlerr.ErrTableNotFound, spec.Source)
	}
	f, err := joined(spec, src, inputs)
	if err != nil {
		return nil, err
	}
	for _, d := range spec.Derive {
		if err := f.derive(d); err != nil {
			return nil, err
		}
	}
	groups, keyTypes, err := groupRows(f, spec.GroupBy)
	if err != nil {
		return nil, err
	}
	sortGroups(groups, spec)
	if spec.Limit > 0 && len(groups) > spec.Limit {
		groups = groups[:spec.Limit]
	}
	return materialize(spec, groups, keyTypes)
}

// frame is the working relation between the join and the group step.
type frame struct {
	n     int
	types map[string]table.Type
	cols  map[string][]any
	// absent is set when the join table was missing; unknown columns then
	// read as all-NULL text.
	absent bool
}

func newFrame(n int) *frame {
	return &frame{n: n, types: map[string]table.Type{}, cols: map[string][]any{}}
}

func (f *frame) add(name string, typ table.Type, vals []any) {
	f.types[name] = typ
	f.cols[name] = vals
}

func (f *frame) column(name string) ([]any, table.Type, error) {
	if v, ok := f.cols[name]; ok {
		return v, f.types[name], nil
	}
	if f.absent {
		return make([]any, f.n), table.Text, nil
	}
	return nil, "", fmt.Errorf("unknown column %s", name)
}

func joined(spec Spec, left *table.Table, inputs map[string]*table.Table) (*frame, error) {
	ls := left.Schema()
	j := spec.Join
	if j == nil {
		f := newFrame(left.Len())
		for c, fld := range ls {
			f.add(fld.Name, fld.Type, left.Column(c))
		}
		return f, nil
	}

	lk := left.Index(j.LeftKey)
	if lk < 0 {
		return nil, fmt.Errorf("join: left key %s not in %s", j.LeftKey, left.Name())
	}
	right := inputs[j.Table]
	if right == nil {
		f := newFrame(left.Len())
		for c, fld := range ls {
			f.add(fld.Name, fld.Type, left.Column(c))
		}
		f.absent = true
		return f, nil
	}
	rk := right.Index(j.RightKey)
	if rk < 0 {
		return nil, fmt.Errorf("join: right key %s not in %s", j.RightKey, right.Name())
	}

	index := make(map[string][]int, right.Len())
	for r := 0; r < right.Len(); r++ {
		v := right.Value(r, rk)
		if v == nil {
			continue
		}
		k := table.Format(v)
		index[k] = append(index[k], r)
	}

	// pairs[i] = {left row, right row}; right row -1 means no match.
	pairs := make([][2]int, 0, left.Len())
	for l := 0; l < left.Len(); l++ {
		var matches []int
		if v := left.Value(l, lk); v != nil {
			matches = index[table.Format(v)]
		}
		if len(matches) == 0 {
			pairs = append(pairs, [2]int{l, -1})
			continue
		}
		for _, r := range matches {
			pairs = append(pairs, [2]int{l, r})
		}
	}

	f := newFrame(len(pairs))
	for c, fld := range ls {
		vals := make([]any, len(pairs))
		for i, p := range pairs {
			vals[i] = left.Value(p[0], c)
		}
		f.add(fld.Name, fld.Type, vals)
	}
	for c, fld := range right.Schema() {
		if c == rk {
			continue
		}
		name := fld.Name
		if _, clash := f.cols[name]; clash {
			name = j.Table + "_" + fld.Name
			if _, again := f.cols[name]; again {
				return nil, fmt.Errorf("join: column %s from %s collides twice", fld.Name, j.Table)
			}
		}
		vals := make([]any, len(pairs))
		for i, p := range pairs {
			if p[1] >= 0 {
				vals[i] = right.Value(p[1], c)
			}
		}
		f.add(name, fld.Type, vals)
	}
	return f, nil
}

// derive computes d and adds it to the frame, replacing a column of the same
// name.
func (f *frame) derive(d Derive) error {
	args := make([][]any, len(d.Args))
	types := make([]table.Type, len(d.Args))
	for i, a := range d.Args {
		col, typ, err := f.column(a)
		if err != nil {
			return fmt.Errorf("derive %s: %w", d.Column, err)
		}
		args[i], types[i] = col, typ
	}

	vals := make([]any, f.n)
	switch d.Func {
	case FuncConcat:
		parts := make([]string, 0, len(args))
		for r := range vals {
			parts = parts[:0]
			for _, a := range args {
				if a[r] != nil {
					parts = append(parts, table.Format(a[r]))
				}
			}
			vals[r] = strings.Join(parts, d.Sep)
		}
	case FuncYear:
		if t := types[0]; t != table.Timestamp && t != table.Text {
			return fmt.Errorf("derive %s: year needs a timestamp or text column, %s is %s", d.Column, d.Args[0], t)
		}
		for r := range vals {
			vals[r] = year(args[0][r])
		}
	default:
		return fmt.Errorf("derive %s: unknown func %q", d.Column, d.Func)
	}
	f.add(d.Column, table.Text, vals)
	return nil
}

// year renders the UTC calendar year of v as four digits. NULL and text that
// is not a timestamp yield NULL.
func year(v any) any {
	var ts time.Time
	switch x := v.(type) {
	case time.Time:
		ts = x
	case string:
		parsed, _, err := table.ParseTimestamp(x)
		if err != nil {
			return nil
		}
		ts = parsed
	default:
		return nil
	}
	return fmt.Sprintf("%04d", ts.UTC().Year())
}

type group struct {
	key   []any
	count int64
}

// groupRows collapses the frame by the key columns. Groups come back in
// first-seen order; NULL is a key value of its own. Each row's key is encoded
// as "<len>:<text>" per column, or "-" for NULL.
func groupRows(f *frame, keys []string) ([]*group, []table.Type, error) {
	cols := make([][]any, len(keys))
	types := make([]table.Type, len(keys))
	for i, k := range keys {
		col, typ, err := f.column(k)
		if err != nil {
			return nil, nil, fmt.Errorf("group_by: %w", err)
		}
		cols[i], types[i] = col, typ
	}

	byKey := make(map[string]*group)
	var order []*group
	var b strings.Builder
	for r := 0; r < f.n; r++ {
		b.Reset()
		for _, col := range cols {
			if v := col[r]; v == nil {
				b.WriteByte('-')
			} else {
				// length-prefixed so no value can absorb its neighbour
				text := table.Format(v)
				b.WriteString(strconv.Itoa(len(text)))
				b.WriteByte(':')
				b.WriteString(text)
			}
		}
		g, ok := byKey[b.String()]
		if !ok {
			g = &group{key: make([]any, len(cols))}
			for i, col := range cols {
				g.key[i] = col[r]
			}
			byKey[b.String()] = g
			order = append(order, g)
		}
		g.count++
	}
	return order, types, nil
}

type sortTerm struct {
	key  int // index into group.key; -1 for the count
	desc bool
}

// sortGroups orders groups by the declared sort keys, then by any group key
// not already named, ascending. NULL sorts below every value.
func sortGroups(groups []*group, spec Spec) {
	pos := make(map[string]int, len(spec.GroupBy))
	for i, k := range spec.GroupBy {
		pos[k] = i
	}
	terms := make([]sortTerm, 0, len(spec.Sort)+len(spec.GroupBy))
	used := make(map[int]bool, len(spec.GroupBy))
	for _, sk := range spec.Sort {
		i, ok := pos[sk.Column]
		if !ok {
			i = -1
		}
		terms = append(terms, sortTerm{key: i, desc: sk.Desc})
		used[i] = true
	}
	for i := range spec.GroupBy {
		if !used[i] {
			terms = append(terms, sortTerm{key: i})
		}
	}

	sort.SliceStable(groups, func(a, b int) bool {
		ga, gb := groups[a], groups[b]
		for _, t := range terms {
			var c int
			if t.key < 0 {
				c = table.Compare(ga.count, gb.count)
			} else {
				c = table.Compare(ga.key[t.key], gb.key[t.key])
			}
			if t.desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}

func materialize(spec Spec, groups []*group, keyTypes []table.Type) (*table.Table, error) {
	schema := make(table.Schema, 0, len(spec.GroupBy)+1)
	for i, k := range spec.GroupBy {
		nullable := false
		for _, g := range groups {
			if g.key[i] == nil {
				nullable = true
				break
			}
		}
		schema = append(schema, table.Field{Name: k, Type: keyTypes[i], Nullable: nullable})
	}
	schema = append(schema, table.Field{Name: spec.Count(), Type: table.Integer})

	b, err := table.NewBuilder(spec.Name, schema)
	if err != nil {
		return nil, err
	}
	b.Grow(len(groups))
	row := make([]any, len(schema))
	for _, g := range groups {
		copy(row, g.key)
		row[len(row)-1] = g.count
		if err := b.Append(row...); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}
