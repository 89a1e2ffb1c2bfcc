// Package partitioner maps partition values to hive-style partition paths
// (`region=eu/day=24`) and decides which partitions a filter condition
// selects.
package partitioner

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lsjoeberg/deltactl/filter"
)

var (
	ErrMissingColumns  = errors.New("missing one or more partition columns")
	ErrBadPartitionDir = errors.New("malformed partition directory")

	// NullPartitionValue marks rows with a null partition column, matching
	// the hive convention used by delta writers.
	NullPartitionValue = "__HIVE_DEFAULT_PARTITION__"
)

// Path renders partition values as a directory path in partition column
// order, e.g. `region=eu/day=24`. Empty for unpartitioned tables.
func Path(values map[string]string, partitionColumns []string) (string, error) {
	var finalParts []string
	for _, col := range partitionColumns {
		v, exists := values[col]
		if !exists {
			return "", fmt.Errorf("%w: %s", ErrMissingColumns, col)
		}
		finalParts = append(finalParts, fmt.Sprintf("%s=%s", col, v))
	}
	return strings.Join(finalParts, "/"), nil
}

// ParsePath parses a partition directory path back into its value map.
func ParsePath(path string) (map[string]string, error) {
	values := make(map[string]string)
	if path == "" {
		return values, nil
	}
	for _, part := range strings.Split(path, "/") {
		key, val, found := strings.Cut(part, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("%w: %s", ErrBadPartitionDir, path)
		}
		values[key] = val
	}
	return values, nil
}

// Matches reports whether a partition value set satisfies every condition.
// Comparison is against recorded partition values only, numerically when both
// sides are numbers and lexically otherwise. A condition on a column the
// partition does not carry never matches, and neither does a null partition.
func Matches(values map[string]string, conds []filter.Condition) bool {
	for _, cond := range conds {
		val, exists := values[cond.Column]
		if !exists || val == NullPartitionValue {
			return false
		}
		if !compare(val, cond.Op, unquote(cond.Value)) {
			return false
		}
	}
	return true
}

func compare(val, op, want string) bool {
	var cmp int
	valNum, errV := strconv.ParseFloat(val, 64)
	wantNum, errW := strconv.ParseFloat(want, 64)
	if errV == nil && errW == nil {
		switch {
		case valNum < wantNum:
			cmp = -1
		case valNum > wantNum:
			cmp = 1
		}
	} else {
		cmp = strings.Compare(val, want)
	}

	switch op {
	case "=":
		return cmp == 0
	case "!=":
		return cmp != 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	default:
		// `in`/`not in` carry a single literal in this grammar, so they
		// degrade to equality checks
		switch strings.ToLower(op) {
		case "in":
			return cmp == 0
		case "not in":
			return cmp != 0
		}
		return false
	}
}

func unquote(literal string) string {
	if len(literal) >= 2 && literal[0] == '\'' && literal[len(literal)-1] == '\'' {
		return literal[1 : len(literal)-1]
	}
	return literal
}
