package rewrite

import (
	"strconv"
	"strings"
)

// Options configures one call to Rewrite, per spec.md §4.1's inputs plus
// the generated-keys RETURNING injection described alongside it.
type Options struct {
	EnableEscapeProcessing bool
	UseParameterized       bool

	// RequestGeneratedKeys, when true, causes an INSERT/UPDATE/DELETE
	// sub-statement with no explicit RETURNING to gain one, projecting
	// GeneratedKeysColumns (or "*" when empty).
	RequestGeneratedKeys bool
	GeneratedKeysColumns []string
}

// Rewrite lexes sql once, splits it into sub-statements on unquoted ';',
// and substitutes every recognized placeholder with its native $n form,
// per the rules in spec.md §4.1.
func Rewrite(sql string, style Style, opts Options) (*Result, error) {
	tokens, err := tokenize(sql)
	if err != nil {
		return nil, err
	}

	res := &Result{NamedSlots: map[string]int{}}
	nativeSlots := map[int]int{}
	nextSlot := 1
	slotSet := map[int]bool{}

	var out strings.Builder
	var phs []Placeholder

	flushSub := func() {
		text := out.String()
		sub := SubQuery{SQL: text, Placeholders: phs}
		sub.IsEmpty = strings.TrimSpace(text) == ""
		if !sub.IsEmpty {
			detectRewritableInsert(&sub)
			detectReturning(&sub)
			applyGeneratedKeys(&sub, opts)
		}
		res.SubQueries = append(res.SubQueries, sub)
		out.Reset()
		phs = nil
	}

	for _, tok := range tokens {
		switch tok.Kind {
		case tokLiteral:
			out.WriteString(tok.Text)

		case tokSeparator:
			flushSub()

		case tokPlaceholderJDBC:
			if style == StyleNone {
				out.WriteByte('?')
				continue
			}
			if !style.acceptsJDBC() {
				return nil, newSyntaxError(tok.Start, "'?' placeholder not permitted by style %s", style)
			}
			slot := nextSlot
			nextSlot++
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(slot))
			phs = append(phs, Placeholder{Slot: slot, Start: tok.Start, End: tok.End, Kind: '?'})
			slotSet[slot] = true

		case tokPlaceholderNative:
			if style == StyleNone {
				out.WriteByte('$')
				out.WriteString(tok.Text)
				continue
			}
			if !style.acceptsNative() {
				return nil, newSyntaxError(tok.Start, "'$%s' placeholder not permitted by style %s", tok.Text, style)
			}
			n, err := strconv.Atoi(tok.Text)
			if err != nil || n < 1 {
				return nil, newSyntaxError(tok.Start, "invalid native placeholder index %q", tok.Text)
			}
			var slot int
			if style == StyleNative {
				slot = n
			} else {
				if existing, ok := nativeSlots[n]; ok {
					slot = existing
				} else {
					slot = nextSlot
					nextSlot++
					nativeSlots[n] = slot
				}
			}
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(slot))
			phs = append(phs, Placeholder{Slot: slot, Start: tok.Start, End: tok.End, Kind: '$'})
			slotSet[slot] = true

		case tokPlaceholderNamed:
			if style == StyleNone {
				out.WriteByte(':')
				out.WriteString(tok.Text)
				continue
			}
			if !style.acceptsNamed() {
				return nil, newSyntaxError(tok.Start, "':%s' placeholder not permitted by style %s", tok.Text, style)
			}
			slot, ok := res.NamedSlots[tok.Text]
			if !ok {
				slot = nextSlot
				nextSlot++
				res.NamedSlots[tok.Text] = slot
			}
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(slot))
			phs = append(phs, Placeholder{Slot: slot, Start: tok.Start, End: tok.End, Kind: ':'})
			slotSet[slot] = true
		}
	}
	flushSub()

	// Drop trailing empty sub-statements (spec.md §4.1), but keep at least
	// one so an all-empty input still yields a single empty SubQuery.
	for len(res.SubQueries) > 1 && res.SubQueries[len(res.SubQueries)-1].IsEmpty {
		res.SubQueries = res.SubQueries[:len(res.SubQueries)-1]
	}

	if style != StyleNamed && style != StyleAny {
		res.NamedSlots = nil
	}
	res.SlotCount = len(slotSet)
	return res, nil
}
