package rewrite

import (
	"regexp"
	"strings"
)

// insertPrefixRe matches the fixed head of a rewritable INSERT, per
// spec.md §4.1: INSERT INTO <relation> [(<col-list>)] VALUES. Anything
// beyond what scanTupleList consumes after this match must be empty or a
// RETURNING clause for the statement to qualify.
var insertPrefixRe = regexp.MustCompile(
	`(?is)^\s*insert\s+into\s+(?P<relation>"[^"]+"|[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)?)\s*(?:\((?P<cols>[^()]*)\))?\s*values\s*`,
)

// returningRe recognizes a trailing RETURNING clause, anchored to the end
// of the statement; recognized as a best-effort lexical match per the
// Non-goal excluding a full SQL grammar (a RETURNING-shaped string literal
// at the very end of a statement would false-positive, an accepted
// limitation of the lexical scan).
var returningRe = regexp.MustCompile(`(?is)\breturning\b\s*(?:\*|[^;]+?)\s*;?\s*$`)

// detectRewritableInsert sets SubQuery.IsRewritableInsert and the
// associated relation/column-list/VALUES-range fields when sub.SQL matches
// INSERT INTO <relation> [(<cols>)] VALUES (<tuple>[, (<tuple>)...])
// [RETURNING ...] with no other trailing clause.
func detectRewritableInsert(sub *SubQuery) {
	m := insertPrefixRe.FindStringSubmatchIndex(sub.SQL)
	if m == nil {
		return
	}
	relIdx := insertPrefixRe.SubexpIndex("relation")
	colsIdx := insertPrefixRe.SubexpIndex("cols")

	valuesEndOfKeyword := m[1]
	tupleStart := valuesEndOfKeyword
	for tupleStart < len(sub.SQL) && isSQLSpace(sub.SQL[tupleStart]) {
		tupleStart++
	}

	tupleEnd, ok := scanTupleList(sub.SQL, valuesEndOfKeyword)
	if !ok {
		return
	}

	rest := strings.TrimSpace(sub.SQL[tupleEnd:])
	if rest != "" && !returningRe.MatchString(rest) {
		return
	}

	sub.IsRewritableInsert = true
	sub.InsertRelation = sub.SQL[m[2*relIdx]:m[2*relIdx+1]]
	if colsIdx >= 0 && m[2*colsIdx] >= 0 {
		sub.InsertColumnList = sub.SQL[m[2*colsIdx]:m[2*colsIdx+1]]
	}
	sub.ValuesStart = tupleStart
	sub.ValuesEnd = tupleEnd
}

// detectReturning sets SubQuery.ReturningColumns when sub.SQL carries a
// trailing RETURNING clause, independent of statement shape.
func detectReturning(sub *SubQuery) {
	if returningRe.MatchString(sub.SQL) {
		sub.ReturningColumns = true
	}
}

// applyGeneratedKeys injects a RETURNING clause onto an INSERT/UPDATE/
// DELETE sub-statement that has none, when the caller requested
// auto-generated keys (spec.md §4.1).
func applyGeneratedKeys(sub *SubQuery, opts Options) {
	if !opts.RequestGeneratedKeys || sub.ReturningColumns {
		return
	}
	if !isInsertUpdateDelete(sub.SQL) {
		return
	}

	projection := "*"
	if len(opts.GeneratedKeysColumns) > 0 {
		projection = strings.Join(opts.GeneratedKeysColumns, ", ")
	}

	sub.SQL = strings.TrimRight(sub.SQL, " \t\r\n;") + " RETURNING " + projection
	sub.ReturningColumns = true
}

var dmlPrefixRe = regexp.MustCompile(`(?is)^\s*(insert|update|delete)\b`)

func isInsertUpdateDelete(sql string) bool {
	return dmlPrefixRe.MatchString(sql)
}

func isSQLSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// scanTupleList scans one or more comma-separated parenthesized tuples
// starting at the first non-space byte at or after pos, respecting
// single-quoted string content so commas/parens inside string literals
// don't confuse the balance count. Returns the offset just past the last
// tuple's closing paren.
func scanTupleList(s string, pos int) (int, bool) {
	n := len(s)
	i := pos
	sawTuple := false

	for {
		for i < n && isSQLSpace(s[i]) {
			i++
		}
		if i >= n || s[i] != '(' {
			break
		}

		depth := 0
		inString := false
		closed := false
		for i < n {
			c := s[i]
			if inString {
				if c == '\'' {
					if i+1 < n && s[i+1] == '\'' {
						i += 2
						continue
					}
					inString = false
				}
				i++
				continue
			}
			switch c {
			case '\'':
				inString = true
				i++
			case '(':
				depth++
				i++
			case ')':
				depth--
				i++
				if depth == 0 {
					closed = true
				}
			default:
				i++
			}
			if closed {
				break
			}
		}
		if !closed {
			return 0, false
		}
		sawTuple = true

		for i < n && isSQLSpace(s[i]) {
			i++
		}
		if i < n && s[i] == ',' {
			i++
			continue
		}
		break
	}

	if !sawTuple {
		return 0, false
	}
	return i, true
}
