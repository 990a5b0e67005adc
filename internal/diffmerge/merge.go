package diffmerge

import "sort"

// baseEdit is one side's change expressed in base coordinates: replace base
// lines [start, end) with repl. Insertions have start == end.
type baseEdit struct {
	start int
	end   int
	repl  []string
}

// Merge attempts to union the edits that ours and theirs each made relative
// to base. It succeeds only when the two edit sets touch disjoint regions of
// the base; overlapping regions (including two insertions at the same point)
// report ok=false and the caller must fall back to conflict resolution.
func Merge(base, ours, theirs string) (merged string, ok bool) {
	dOurs := Compute(base, ours)
	dTheirs := Compute(base, theirs)

	oursEdits := baseEdits(dOurs)
	theirsEdits := baseEdits(dTheirs)

	all := make([]baseEdit, 0, len(oursEdits)+len(theirsEdits))
	all = append(all, oursEdits...)
	all = append(all, theirsEdits...)
	sort.Slice(all, func(i, j int) bool { return all[i].start < all[j].start })

	for i := 1; i < len(all); i++ {
		if overlaps(all[i-1], all[i]) {
			return "", false
		}
	}

	baseLines, baseEOL := SplitLines(base)
	var out []string
	idx := 0
	for _, e := range all {
		out = append(out, baseLines[idx:e.start]...)
		out = append(out, e.repl...)
		idx = e.end
	}
	out = append(out, baseLines[idx:]...)

	eol := baseEOL
	if dOurs.TheirsEOL != baseEOL {
		eol = dOurs.TheirsEOL
	} else if dTheirs.TheirsEOL != baseEOL {
		eol = dTheirs.TheirsEOL
	}

	return JoinLines(out, eol), true
}

// baseEdits extracts the changed hunks of a Compute(base, x) diff as edits in
// base coordinates. In that diff the ours side is the base.
func baseEdits(d *Diff) []baseEdit {
	var edits []baseEdit
	for _, h := range d.Hunks {
		if h.Kind == HunkUnchanged {
			continue
		}
		start := h.OursStartLine - 1
		edits = append(edits, baseEdit{
			start: start,
			end:   start + len(h.OursLines),
			repl:  h.TheirsLines,
		})
	}
	return edits
}

func overlaps(a, b baseEdit) bool {
	if a.start == b.start {
		return true
	}
	return a.start < b.end && b.start < a.end
}
