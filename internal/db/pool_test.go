package db

import "testing"

func TestSchemaName(t *testing.T) {
	cases := map[string]string{
		"":               "public",
		"scans":          "scans",
		"emp_42":         "emp_42",
		"public; DROP x": "public",
		"Upper":          "public",
	}
	for in, want := range cases {
		if got := SchemaName(in); got != want {
			t.Fatalf("SchemaName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPingWithoutPool(t *testing.T) {
	if err := Ping(t.Context()); err == nil {
		t.Fatalf("expected error without a pool")
	}
}
