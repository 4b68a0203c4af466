package report

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"promoetl/internal/etlerr"
	"promoetl/internal/table"
)

var (
	usageSchema = table.Schema{
		{Name: "user_id", Type: table.Integer, Nullable: true},
		{Name: "promo_code", Type: table.Text, Nullable: true},
		{Name: "used_at", Type: table.Timestamp, Nullable: true},
	}
	usersSchema = table.Schema{
		{Name: "user_id", Type: table.Integer},
		{Name: "first_name", Type: table.Text, Nullable: true},
		{Name: "last_name", Type: table.Text, Nullable: true},
		{Name: "created_at", Type: table.Timestamp, Nullable: true},
	}
)

func ts(y int) time.Time { return time.Date(y, 3, 1, 12, 0, 0, 0, time.UTC) }

func mustTable(t *testing.T, name string, s table.Schema, rows [][]any) *table.Table {
	t.Helper()
	tb, err := table.FromRows(name, s, rows)
	if err != nil {
		t.Fatalf("FromRows(%s): %v", name, err)
	}
	return tb
}

func specByName(t *testing.T, name string) Spec {
	t.Helper()
	for _, s := range Builtins() {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("no builtin %s", name)
	return Spec{}
}

// scenario is the four-event example: user1 uses codeA twice, user2 uses
// codeA and codeB.
func scenario(t *testing.T) map[string]*table.Table {
	t.Helper()
	return map[string]*table.Table{
		TableUsage: mustTable(t, TableUsage, usageSchema, [][]any{
			{int64(1), "codeA", ts(2020)},
			{int64(1), "codeA", ts(2021)},
			{int64(2), "codeA", ts(2021)},
			{int64(2), "codeB", ts(2019)},
		}),
		TableUsers: mustTable(t, TableUsers, usersSchema, [][]any{
			{int64(1), "Ann", "Lee", ts(2018)},
			{int64(2), "Bo", "Kim", ts(2018)},
		}),
	}
}

func TestBuild_Scenario(t *testing.T) {
	t.Parallel()

	in := scenario(t)
	tests := []struct {
		name string
		want [][]any
	}{
		{TopUsers, [][]any{{"Ann Lee", int64(2)}, {"Bo Kim", int64(2)}}},
		{TopPromoCodes, [][]any{{"codeA", int64(3)}, {"codeB", int64(1)}}},
		{UsageTimeline, [][]any{{"2021", int64(2)}, {"2020", int64(1)}, {"2019", int64(1)}}},
		{RegistrationsByYr, [][]any{{"2018", int64(2)}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Build(specByName(t, tt.name), in)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if got.Name() != tt.name {
				t.Fatalf("name = %s", got.Name())
			}
			if !reflect.DeepEqual(got.Rows(), tt.want) {
				t.Fatalf("rows = %v, want %v", got.Rows(), tt.want)
			}
			s := got.Schema()
			if last := s[len(s)-1]; last.Name != DefaultCountColumn || last.Type != table.Integer || last.Nullable {
				t.Fatalf("count field = %+v", last)
			}
		})
	}
}

func TestBuild_EmptyUsage(t *testing.T) {
	t.Parallel()

	in := map[string]*table.Table{
		TableUsage: mustTable(t, TableUsage, usageSchema, nil),
		TableUsers: mustTable(t, TableUsers, usersSchema, nil),
	}
	for _, name := range []string{TopUsers, TopPromoCodes, UsageTimeline} {
		got, err := Build(specByName(t, name), in)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got.Len() != 0 {
			t.Fatalf("%s: %d rows, want 0", name, got.Len())
		}
		if n := len(got.Schema()); n != 2 {
			t.Fatalf("%s: %d columns, want 2", name, n)
		}
	}
}

func TestBuild_LeftJoinKeepsOrphans(t *testing.T) {
	t.Parallel()

	in := map[string]*table.Table{
		TableUsage: mustTable(t, TableUsage, usageSchema, [][]any{
			{int64(1), "a", nil},
			{int64(9), "a", nil},
			{nil, "b", nil},
			{int64(9), "c", nil},
		}),
		TableUsers: mustTable(t, TableUsers, usersSchema, [][]any{
			{int64(1), "Ann", nil, nil},
		}),
	}
	got, err := Build(specByName(t, TopUsers), in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := [][]any{{"", int64(3)}, {"Ann", int64(1)}}
	if !reflect.DeepEqual(got.Rows(), want) {
		t.Fatalf("rows = %v, want %v", got.Rows(), want)
	}

	var total int64
	for r := 0; r < got.Len(); r++ {
		total += got.Value(r, 1).(int64)
	}
	if total != int64(in[TableUsage].Len()) {
		t.Fatalf("total = %d, want %d", total, in[TableUsage].Len())
	}
}

func TestBuild_AbsentJoinTable(t *testing.T) {
	t.Parallel()

	in := map[string]*table.Table{
		TableUsage: mustTable(t, TableUsage, usageSchema, [][]any{
			{int64(1), "a", nil},
			{int64(2), "b", nil},
		}),
	}
	got, err := Build(specByName(t, TopUsers), in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if want := [][]any{{"", int64(2)}}; !reflect.DeepEqual(got.Rows(), want) {
		t.Fatalf("rows = %v, want %v", got.Rows(), want)
	}
}

func TestBuild_DuplicateRightKeysFanOut(t *testing.T) {
	t.Parallel()

	spec := Spec{
		Name:    "by_name",
		Source:  "l",
		Join:    &Join{Table: "r", LeftKey: "id", RightKey: "rid"},
		GroupBy: []string{"name"},
	}
	in := map[string]*table.Table{
		"l": mustTable(t, "l", table.Schema{{Name: "id", Type: table.Integer}, {Name: "name", Type: table.Text}}, [][]any{
			{int64(1), "x"},
		}),
		"r": mustTable(t, "r", table.Schema{{Name: "rid", Type: table.Integer}, {Name: "name", Type: table.Text}}, [][]any{
			{int64(1), "y"},
			{int64(1), "z"},
		}),
	}
	got, err := Build(spec, in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if want := [][]any{{"x", int64(2)}}; !reflect.DeepEqual(got.Rows(), want) {
		t.Fatalf("rows = %v, want %v", got.Rows(), want)
	}

	spec.GroupBy = []string{"r_name"}
	got, err = Build(spec, in)
	if err != nil {
		t.Fatalf("Build renamed: %v", err)
	}
	if want := [][]any{{"y", int64(1)}, {"z", int64(1)}}; !reflect.DeepEqual(got.Rows(), want) {
		t.Fatalf("rows = %v, want %v", got.Rows(), want)
	}
}

func TestBuild_TopNLimitAndOrder(t *testing.T) {
	t.Parallel()

	var rows [][]any
	for i := 0; i < 15; i++ {
		code := string(rune('a' + i))
		for n := 0; n <= i%4; n++ {
			rows = append(rows, []any{int64(i), code, nil})
		}
	}
	in := map[string]*table.Table{TableUsage: mustTable(t, TableUsage, usageSchema, rows)}

	got, err := Build(specByName(t, TopPromoCodes), in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got.Len() != 10 {
		t.Fatalf("len = %d, want 10", got.Len())
	}
	seen := map[string]bool{}
	for r := 0; r < got.Len(); r++ {
		k := got.Value(r, 0).(string)
		if seen[k] {
			t.Fatalf("duplicate key %s", k)
		}
		seen[k] = true
		if r == 0 {
			continue
		}
		prev, cur := got.Value(r-1, 1).(int64), got.Value(r, 1).(int64)
		if cur > prev {
			t.Fatalf("row %d: count %d after %d", r, cur, prev)
		}
		if cur == prev && got.Value(r-1, 0).(string) > k {
			t.Fatalf("row %d: tie not broken ascending", r)
		}
	}
	if first := got.Row(0); !reflect.DeepEqual(first, []any{"d", int64(4)}) {
		t.Fatalf("first = %v", first)
	}
}

func TestBuild_NullGroupsAndYears(t *testing.T) {
	t.Parallel()

	in := map[string]*table.Table{
		TableUsage: mustTable(t, TableUsage, usageSchema, [][]any{
			{int64(1), nil, nil},
			{int64(1), "a", ts(2022)},
			{int64(1), nil, time.Date(2023, 1, 1, 0, 30, 0, 0, time.FixedZone("x", 2*3600))},
		}),
	}

	codes, err := Build(specByName(t, TopPromoCodes), in)
	if err != nil {
		t.Fatalf("codes: %v", err)
	}
	if want := [][]any{{nil, int64(2)}, {"a", int64(1)}}; !reflect.DeepEqual(codes.Rows(), want) {
		t.Fatalf("codes = %v, want %v", codes.Rows(), want)
	}
	if !codes.Schema()[0].Nullable {
		t.Fatal("promo_code should be nullable when a NULL group exists")
	}

	years, err := Build(specByName(t, UsageTimeline), in)
	if err != nil {
		t.Fatalf("years: %v", err)
	}
	// 2023-01-01T00:30+02:00 is 2022 in UTC; NULL sorts last descending.
	if want := [][]any{{"2022", int64(2)}, {nil, int64(1)}}; !reflect.DeepEqual(years.Rows(), want) {
		t.Fatalf("years = %v, want %v", years.Rows(), want)
	}
}

func TestBuild_MultiColumnKeysStayDistinct(t *testing.T) {
	t.Parallel()

	pairs := table.Schema{
		{Name: "a", Type: table.Text, Nullable: true},
		{Name: "b", Type: table.Text, Nullable: true},
	}
	in := map[string]*table.Table{
		"pairs": mustTable(t, "pairs", pairs, [][]any{
			{"x", "y\x1f\x01z"},
			{"x\x1f\x01y", "z"},
			{"ab", "c"},
			{"a", "bc"},
			{nil, ""},
			{"", nil},
			{"x", "y\x1f\x01z"},
		}),
	}

	got, err := Build(Spec{Name: "pair_counts", Source: "pairs", GroupBy: []string{"a", "b"}}, in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := [][]any{
		{nil, "", int64(1)},
		{"", nil, int64(1)},
		{"a", "bc", int64(1)},
		{"ab", "c", int64(1)},
		{"x", "y\x1f\x01z", int64(2)},
		{"x\x1f\x01y", "z", int64(1)},
	}
	if !reflect.DeepEqual(got.Rows(), want) {
		t.Fatalf("rows = %q, want %q", got.Rows(), want)
	}
}

func TestBuild_YearFromText(t *testing.T) {
	t.Parallel()

	spec := Spec{
		Name:    "y",
		Source:  "s",
		Derive:  []Derive{{Column: "year", Func: FuncYear, Args: []string{"at"}}},
		GroupBy: []string{"year"},
		Sort:    []SortKey{{Column: "year", Desc: true}},
	}
	in := map[string]*table.Table{
		"s": mustTable(t, "s", table.Schema{{Name: "at", Type: table.Text, Nullable: true}}, [][]any{
			{"2019-05-01 10:00:00"}, {"garbage"}, {"2020-01-02"},
		}),
	}
	got, err := Build(spec, in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if want := [][]any{{"2020", int64(1)}, {"2019", int64(1)}, {nil, int64(1)}}; !reflect.DeepEqual(got.Rows(), want) {
		t.Fatalf("rows = %v, want %v", got.Rows(), want)
	}

	spec.Derive[0].Args = []string{"n"}
	in["s"] = mustTable(t, "s", table.Schema{{Name: "n", Type: table.Integer}}, [][]any{{int64(1)}})
	if _, err := Build(spec, in); err == nil {
		t.Fatal("year over an integer column should fail")
	}
}

func TestBuild_Errors(t *testing.T) {
	t.Parallel()

	in := scenario(t)
	tests := []struct {
		name    string
		spec    Spec
		in      map[string]*table.Table
		wantErr error
	}{
		{"missing source", specByName(t, TopPromoCodes), map[string]*table.Table{}, etlerr.ErrTableNotFound},
		{"unknown group column", Spec{Name: "x", Source: TableUsage, GroupBy: []string{"nope"}}, in, nil},
		{"bad left key", Spec{Name: "x", Source: TableUsage, Join: &Join{Table: TableUsers, LeftKey: "nope", RightKey: "user_id"}, GroupBy: []string{"promo_code"}}, in, nil},
		{"bad right key", Spec{Name: "x", Source: TableUsage, Join: &Join{Table: TableUsers, LeftKey: "user_id", RightKey: "nope"}, GroupBy: []string{"promo_code"}}, in, nil},
		{"invalid spec", Spec{Name: "x", Source: TableUsage}, in, nil},
	}
	for _, tt := range tests {
		_, err := Build(tt.spec, tt.in)
		if err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
		var se *etlerr.StageError
		if !errors.As(err, &se) || se.Stage != etlerr.StageBuild || se.Object != tt.spec.Name {
			t.Fatalf("%s: not a build stage error: %v", tt.name, err)
		}
		if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
			t.Fatalf("%s: err = %v, want %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestBuild_Deterministic(t *testing.T) {
	t.Parallel()

	in := scenario(t)
	for _, spec := range Builtins() {
		a, err := Build(spec, in)
		if err != nil {
			t.Fatalf("%s: %v", spec.Name, err)
		}
		b, err := Build(spec, in)
		if err != nil {
			t.Fatalf("%s: %v", spec.Name, err)
		}
		if a.Fingerprint() != b.Fingerprint() {
			t.Fatalf("%s: fingerprints differ", spec.Name)
		}
	}
}
