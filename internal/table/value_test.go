package table

import (
	"testing"
	"time"
)

func TestCoerce(t *testing.T) {
	t.Parallel()

	ts := time.Date(2022, 7, 1, 12, 30, 0, 0, time.UTC)
	cases := []struct {
		typ     Type
		raw     string
		want    any
		wantErr bool
	}{
		{Text, "abc", "abc", false},
		{Text, "", nil, false},
		{Integer, " 42 ", int64(42), false},
		{Integer, "4.2", nil, true},
		{Real, "4.5", 4.5, false},
		{Boolean, "yes", true, false},
		{Boolean, "maybe", nil, true},
		{Timestamp, "2022-07-01 12:30:00", ts, false},
		{Timestamp, "2022-07-01T14:30:00+02:00", ts, false},
		{Timestamp, "2022-07-01", time.Date(2022, 7, 1, 0, 0, 0, 0, time.UTC), false},
		{Timestamp, "yesterday", nil, true},
		{Integer, "", nil, false},
	}
	for _, tc := range cases {
		got, err := Coerce(tc.typ, tc.raw)
		if (err != nil) != tc.wantErr {
			t.Errorf("Coerce(%s, %q) err = %v, wantErr %v", tc.typ, tc.raw, err, tc.wantErr)
			continue
		}
		if tc.wantErr {
			continue
		}
		if Compare(got, tc.want) != 0 {
			t.Errorf("Coerce(%s, %q) = %#v, want %#v", tc.typ, tc.raw, got, tc.want)
		}
	}
}

func TestNormalize_DriverValues(t *testing.T) {
	t.Parallel()

	local := time.Date(2020, 1, 1, 1, 0, 0, 0, time.FixedZone("CET", 3600))
	cases := []struct {
		typ  Type
		in   any
		want any
	}{
		{Integer, int32(7), int64(7)},
		{Integer, []byte("8"), int64(8)},
		{Integer, float64(9), int64(9)},
		{Text, []byte("x"), "x"},
		{Real, int64(2), 2.0},
		{Boolean, int64(1), true},
		{Timestamp, local, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Timestamp, "2020-01-01 00:00:00+00:00", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Text, nil, nil},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.typ, tc.in)
		if err != nil {
			t.Errorf("Normalize(%s, %#v): %v", tc.typ, tc.in, err)
			continue
		}
		if Compare(got, tc.want) != 0 {
			t.Errorf("Normalize(%s, %#v) = %#v, want %#v", tc.typ, tc.in, got, tc.want)
		}
	}

	if _, err := Normalize(Integer, 1.5); err == nil {
		t.Error("Normalize(Integer, 1.5) accepted a fractional value")
	}
}

func TestCompare_NullsFirst(t *testing.T) {
	t.Parallel()

	if Compare(nil, "a") >= 0 || Compare("a", nil) <= 0 || Compare(nil, nil) != 0 {
		t.Fatal("NULL must sort before non-NULL")
	}
	if Compare("Ann Lee", "Bo Kim") >= 0 {
		t.Fatal("string order")
	}
	if Compare("a", "A") == 0 {
		t.Fatal("comparison must be case-sensitive")
	}
	if Compare(int64(3), int64(10)) >= 0 {
		t.Fatal("integer order")
	}
}

func TestParseType(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Type{
		"INT": Integer, "string": Text, "datetime": Timestamp, "double": Real, "bool": Boolean,
	} {
		got, err := ParseType(in)
		if err != nil || got != want {
			t.Errorf("ParseType(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseType("uuid"); err == nil {
		t.Error("ParseType(uuid) accepted")
	}
}
