package stmt

import (
	"strconv"
	"strings"

	"github.com/quaydb/pgxec/params"
	"github.com/quaydb/pgxec/rewrite"
)

// spliceValuesTuples rewrites sub's single VALUES(...) tuple into one
// VALUES(...),(...),... list covering every entry in group, renumbering
// placeholders in source order, and returns the merged SQL text alongside
// a freshly built parameter list carrying every entry's bound values in
// order (spec.md §4.5's rewriteBatchedInserts).
func spliceValuesTuples(sub rewrite.SubQuery, group []*params.List) (string, *params.List) {
	tuple := sub.SQL[sub.ValuesStart:sub.ValuesEnd]
	paramsPerTuple := len(group[0].Values())

	var tuples strings.Builder
	tuples.Grow(len(tuple) * len(group))
	for i := range group {
		if i > 0 {
			tuples.WriteByte(',')
		}
		tuples.WriteString(renumberTuple(tuple, i*paramsPerTuple))
	}

	merged := sub.SQL[:sub.ValuesStart] + tuples.String() + sub.SQL[sub.ValuesEnd:]

	pl := params.NewList(paramsPerTuple * len(group))
	slot := 1
	for _, entry := range group {
		values := entry.Values()
		oids := entry.OIDs()
		formats := entry.Formats()
		for i := range values {
			pl.Set(slot, values[i], oids[i], formats[i])
			slot++
		}
	}
	return merged, pl
}

// renumberTuple rewrites every "$n" placeholder in a single VALUES tuple to
// "$(n+offset)", preserving everything else verbatim.
func renumberTuple(tuple string, offset int) string {
	var out strings.Builder
	out.Grow(len(tuple))
	for i := 0; i < len(tuple); {
		if tuple[i] == '$' && i+1 < len(tuple) && tuple[i+1] >= '0' && tuple[i+1] <= '9' {
			j := i + 1
			for j < len(tuple) && tuple[j] >= '0' && tuple[j] <= '9' {
				j++
			}
			n, _ := strconv.Atoi(tuple[i+1 : j])
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(n + offset))
			i = j
			continue
		}
		out.WriteByte(tuple[i])
		i++
	}
	return out.String()
}
