package partitioner

import (
	"errors"
	"testing"

	"github.com/lsjoeberg/deltactl/filter"
)

func TestPathRoundTrip(t *testing.T) {
	values := map[string]string{"region": "eu", "day": "24"}

	path, err := Path(values, []string{"region", "day"})
	if err != nil {
		t.Fatal(err)
	}
	if path != "region=eu/day=24" {
		t.Fatalf("got %q", path)
	}

	parsed, err := ParsePath(path)
	if err != nil {
		t.Fatal(err)
	}
	if parsed["region"] != "eu" || parsed["day"] != "24" {
		t.Fatalf("got %+v", parsed)
	}

	empty, err := Path(map[string]string{}, nil)
	if err != nil || empty != "" {
		t.Fatalf("got %q, %v", empty, err)
	}

	if _, err := Path(values, []string{"missing"}); !errors.Is(err, ErrMissingColumns) {
		t.Fatalf("expected ErrMissingColumns, got %v", err)
	}
	if _, err := ParsePath("no-separator"); !errors.Is(err, ErrBadPartitionDir) {
		t.Fatalf("expected ErrBadPartitionDir, got %v", err)
	}
}

func TestMatches(t *testing.T) {
	values := map[string]string{"region": "eu", "day": "24"}

	tests := []struct {
		cond string
		want bool
	}{
		{"region = 'eu'", true},
		{"region != 'eu'", false},
		{"region = 'us'", false},
		{"day > 20", true},
		{"day > 24", false},
		{"day >= 24", true},
		{"day <= 9", false}, // numeric, not lexical: 24 > 9
		{"day in 24", true},
		{"day not in 24", false},
		{"other = 1", false},
	}
	nullValues := map[string]string{"day": NullPartitionValue}
	for _, tt := range tests {
		cond, err := filter.ParseCondition(tt.cond)
		if err != nil {
			t.Fatal(err)
		}
		if got := Matches(values, []filter.Condition{cond}); got != tt.want {
			t.Fatalf("Matches(%q) = %v, want %v", tt.cond, got, tt.want)
		}
	}

	// null partitions never match, not even a negated condition
	nullCond, err := filter.ParseCondition("day != 24")
	if err != nil {
		t.Fatal(err)
	}
	if Matches(nullValues, []filter.Condition{nullCond}) {
		t.Fatal("null partition should not match")
	}

	// all conditions must hold together
	conds, err := filter.ParseConditions([]string{"region = 'eu'", "day < 20"})
	if err != nil {
		t.Fatal(err)
	}
	if Matches(values, conds) {
		t.Fatal("conjunction should not match")
	}
	if !Matches(values, nil) {
		t.Fatal("empty condition set must match everything")
	}
}
