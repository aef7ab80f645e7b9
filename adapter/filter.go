package adapter

import (
	"fmt"
	"strings"

	"github.com/mitayan0/WaveQL/batch"
	"github.com/mitayan0/WaveQL/planner"
)

// ApplyPredicates evaluates predicates client-side against b and returns a
// new batch containing only the matching rows. Adapters that only push
// equality filters down to their source (spec §6 "Generic REST") use this
// for everything else, so a partial-pushdown fetch still returns correct
// results rather than raising PushdownUnsupported for every predicate kind.
func ApplyPredicates(b *batch.Batch, predicates []planner.Predicate) (*batch.Batch, error) {
	if len(predicates) == 0 {
		return b, nil
	}
	schema := b.Schema()
	keep := make([]int, 0, b.RowCount())
	for row := 0; row < b.RowCount(); row++ {
		ok, err := matchesAll(schema, b, row, predicates)
		if err != nil {
			return nil, err
		}
		if ok {
			keep = append(keep, row)
		}
	}
	cols := make([][]any, len(schema))
	for c := range schema {
		col := make([]any, len(keep))
		for i, r := range keep {
			col[i] = b.Column(c)[r]
		}
		cols[c] = col
	}
	return batch.Build(schema, cols)
}

func matchesAll(schema batch.Schema, b *batch.Batch, row int, predicates []planner.Predicate) (bool, error) {
	for _, p := range predicates {
		idx := schema.IndexOf(p.Column)
		if idx < 0 {
			return false, fmt.Errorf("adapter: unknown column %q in client-side filter", p.Column)
		}
		v := b.Column(idx)[row]
		if !matches(v, p) {
			return false, nil
		}
	}
	return true, nil
}

func matches(v any, p planner.Predicate) bool {
	switch p.Operator {
	case planner.OpIsNull:
		return v == nil
	case planner.OpIsNotNull:
		return v != nil
	case planner.OpIn:
		values, _ := p.Value.([]any)
		for _, want := range values {
			if compareEqual(v, want) {
				return true
			}
		}
		return false
	case planner.OpEq:
		return compareEqual(v, p.Value)
	case planner.OpNeq:
		return !compareEqual(v, p.Value)
	case planner.OpLike:
		return matchesLike(v, p.Value)
	default:
		cmp, ok := compareOrdered(v, p.Value)
		if !ok {
			return false
		}
		switch p.Operator {
		case planner.OpLt:
			return cmp < 0
		case planner.OpLte:
			return cmp <= 0
		case planner.OpGt:
			return cmp > 0
		case planner.OpGte:
			return cmp >= 0
		}
		return false
	}
}

func compareEqual(a, b any) bool {
	if cmp, ok := compareOrdered(a, b); ok {
		return cmp == 0
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compareOrdered(a, b any) (int, bool) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	default:
		return 0, false
	}
}

func matchesLike(v, pattern any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	p, ok := pattern.(string)
	if !ok {
		return false
	}
	p = strings.ReplaceAll(p, "%", "*")
	return matchGlob(p, s)
}

// matchGlob implements SQL LIKE's wildcards with a small recursive matcher:
// '*' (matchesLike's translation of '%') and '_', which is matched as is
// without translation; sufficient for the equality-heavy
// predicates this adapter layer evaluates client-side.
func matchGlob(pattern, s string) bool {
	if pattern == "" {
		return s == ""
	}
	switch pattern[0] {
	case '*':
		for i := 0; i <= len(s); i++ {
			if matchGlob(pattern[1:], s[i:]) {
				return true
			}
		}
		return false
	case '_':
		if len(s) == 0 {
			return false
		}
		return matchGlob(pattern[1:], s[1:])
	default:
		if len(s) == 0 || s[0] != pattern[0] {
			return false
		}
		return matchGlob(pattern[1:], s[1:])
	}
}
