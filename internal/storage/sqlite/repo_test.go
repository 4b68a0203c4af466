package sqlite

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	gddl "promoetl/internal/ddl"
	"promoetl/internal/etlerr"
	"promoetl/internal/source"
	sqliteddl "promoetl/internal/storage/sqlite/ddl"
	"promoetl/internal/table"
)

/*
Package-level test helpers (TB-aware)
*/

func newRepo(tb testing.TB) *Repository {
	tb.Helper()
	r, closeFn, err := NewRepository(context.Background(), Config{DSN: ":memory:", BatchSize: 2})
	if err != nil {
		tb.Fatalf("open sqlite :memory:: %v", err)
	}
	tb.Cleanup(closeFn)
	return r
}

func mustTable(tb testing.TB, name string, schema table.Schema, rows [][]any) *table.Table {
	tb.Helper()
	t, err := table.FromRows(name, schema, rows)
	if err != nil {
		tb.Fatalf("build %s: %v", name, err)
	}
	return t
}

func usageSchema() table.Schema {
	return table.Schema{
		{Name: "user_id", Type: table.Integer, Nullable: true},
		{Name: "promo_code", Type: table.Text, Nullable: true},
		{Name: "used_at", Type: table.Timestamp, Nullable: true},
		{Name: "amount", Type: table.Real, Nullable: true},
		{Name: "first_use", Type: table.Boolean, Nullable: true},
	}
}

/*
Unit tests
*/

// TestLoadTable_RoundTripsEveryType verifies that values of every logical
// type, NULLs included, come back unchanged from ReadTable.
func TestLoadTable_RoundTripsEveryType(t *testing.T) {
	t.Parallel()

	r := newRepo(t)
	ctx := context.Background()

	ts := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	in := mustTable(t, "user_promo_dataset", usageSchema(), [][]any{
		{int64(1), "codeA", ts, 9.5, true},
		{int64(2), "", ts.Add(time.Hour), -1.25, false},
		{nil, nil, nil, nil, nil},
	})

	n, err := r.LoadTable(ctx, in)
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if n != 3 {
		t.Fatalf("LoadTable inserted %d, want 3", n)
	}

	out, err := r.ReadTable(ctx, "user_promo_dataset")
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if !table.Equal(in, out) {
		t.Fatalf("round trip mismatch\n in: %v\nout: %v", in.Rows(), out.Rows())
	}
}

// TestLoadTable_ReplacesPriorTable verifies replace mode: a reload with a
// different schema drops the old columns and old rows.
// TestLoadTable_DottedColumnNames verifies that a header containing a dot is
// one column, not a qualified name, on load, read and replace.
func TestLoadTable_DottedColumnNames(t *testing.T) {
	t.Parallel()

	r := newRepo(t)
	ctx := context.Background()

	in, err := source.ReadCSV("events", strings.NewReader("user.id,promo_code\n1,A\n2,B\n"), source.ReadOptions{})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if _, err := r.LoadTable(ctx, in); err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	out, err := r.ReadTable(ctx, "events")
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if got, want := out.Schema().Names(), []string{"user.id", "promo_code"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("columns = %v, want %v", got, want)
	}
	if got := out.Value(1, out.Index("user.id")); got != int64(2) {
		t.Fatalf("user.id row 1 = %v, want 2", got)
	}

	def := gddl.FromSchema("events_dw", out.Schema(), sqliteddl.MapType, []string{"user.id"})
	if err := r.EnsureTable(ctx, def); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	if _, err := r.ReplaceRows(ctx, mustTable(t, "events_dw", out.Schema(), out.Rows())); err != nil {
		t.Fatalf("ReplaceRows: %v", err)
	}
	dw, err := r.ReadTable(ctx, "events_dw")
	if err != nil {
		t.Fatalf("ReadTable events_dw: %v", err)
	}
	if dw.Len() != 2 {
		t.Fatalf("events_dw rows = %d, want 2", dw.Len())
	}
}

func TestLoadTable_ReplacesPriorTable(t *testing.T) {
	t.Parallel()

	r := newRepo(t)
	ctx := context.Background()

	first := mustTable(t, "users", table.Schema{
		{Name: "user_id", Type: table.Integer},
		{Name: "legacy", Type: table.Text, Nullable: true},
	}, [][]any{{int64(1), "x"}, {int64(2), "y"}})
	if _, err := r.LoadTable(ctx, first); err != nil {
		t.Fatalf("first LoadTable: %v", err)
	}

	second := mustTable(t, "users", table.Schema{
		{Name: "user_id", Type: table.Integer},
		{Name: "first_name", Type: table.Text, Nullable: true},
	}, [][]any{{int64(7), "Ann"}})
	if _, err := r.LoadTable(ctx, second); err != nil {
		t.Fatalf("second LoadTable: %v", err)
	}

	schema, ok, err := r.DescribeTable(ctx, "users")
	if err != nil || !ok {
		t.Fatalf("DescribeTable ok=%v err=%v", ok, err)
	}
	if !schema.Equal(second.Schema()) {
		t.Fatalf("schema = %s, want %s", schema, second.Schema())
	}
	out, err := r.ReadTable(ctx, "users")
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if !table.Equal(second, out) {
		t.Fatalf("rows = %v, want %v", out.Rows(), second.Rows())
	}
}

func TestReadTable_Missing(t *testing.T) {
	t.Parallel()

	r := newRepo(t)
	_, err := r.ReadTable(context.Background(), "nope")
	if !errors.Is(err, etlerr.ErrTableNotFound) {
		t.Fatalf("err = %v, want ErrTableNotFound", err)
	}
}

// TestEnsureTableAndReplaceRows verifies the warehouse write path: the table
// is created once, NULL keys are accepted by the UNIQUE constraint, and
// repeated replaces never accumulate rows.
func TestEnsureTableAndReplaceRows(t *testing.T) {
	t.Parallel()

	r := newRepo(t)
	ctx := context.Background()

	schema := table.Schema{
		{Name: "year", Type: table.Text, Nullable: true},
		{Name: "count", Type: table.Integer},
	}
	def := gddl.FromSchema("promocodes_usage_timeline", schema, sqliteddl.MapType, []string{"year"})

	for i := 0; i < 2; i++ {
		if err := r.EnsureTable(ctx, def); err != nil {
			t.Fatalf("EnsureTable #%d: %v", i, err)
		}
	}

	result := mustTable(t, "promocodes_usage_timeline", schema, [][]any{
		{"2022", int64(3)},
		{"2021", int64(1)},
		{nil, int64(2)},
	})
	for i := 0; i < 2; i++ {
		n, err := r.ReplaceRows(ctx, result)
		if err != nil {
			t.Fatalf("ReplaceRows #%d: %v", i, err)
		}
		if n != 3 {
			t.Fatalf("ReplaceRows #%d inserted %d, want 3", i, n)
		}
	}

	out, err := r.ReadTable(ctx, "promocodes_usage_timeline")
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if !table.Equal(result, out) {
		t.Fatalf("rows = %v, want %v", out.Rows(), result.Rows())
	}
}

// TestReplaceRows_RollsBackOnFailure verifies a failing insert leaves the
// previous contents untouched.
func TestReplaceRows_RollsBackOnFailure(t *testing.T) {
	t.Parallel()

	r := newRepo(t)
	ctx := context.Background()

	schema := table.Schema{
		{Name: "promo_code", Type: table.Text, Nullable: true},
		{Name: "count", Type: table.Integer},
	}
	def := gddl.FromSchema("codes", schema, sqliteddl.MapType, []string{"promo_code"})
	if err := r.EnsureTable(ctx, def); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	good := mustTable(t, "codes", schema, [][]any{{"a", int64(1)}})
	if _, err := r.ReplaceRows(ctx, good); err != nil {
		t.Fatalf("ReplaceRows: %v", err)
	}

	dup := mustTable(t, "codes", schema, [][]any{{"b", int64(1)}, {"b", int64(2)}})
	if _, err := r.ReplaceRows(ctx, dup); err == nil {
		t.Fatal("ReplaceRows with duplicate keys succeeded, want UNIQUE violation")
	}

	out, err := r.ReadTable(ctx, "codes")
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if !table.Equal(good, out) {
		t.Fatalf("rows = %v, want %v", out.Rows(), good.Rows())
	}
}

func TestDescribeTable_Missing(t *testing.T) {
	t.Parallel()

	r := newRepo(t)
	schema, ok, err := r.DescribeTable(context.Background(), "absent")
	if err != nil || ok || schema != nil {
		t.Fatalf("DescribeTable = %v, %v, %v", schema, ok, err)
	}
}

func TestNewRepository_EmptyDSN(t *testing.T) {
	t.Parallel()

	if _, _, err := NewRepository(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
