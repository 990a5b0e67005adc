package diffmerge

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// HunkKind classifies a contiguous block of a line diff.
type HunkKind string

const (
	HunkUnchanged HunkKind = "unchanged"
	HunkModified  HunkKind = "modified"
	HunkAdded     HunkKind = "added"
	HunkRemoved   HunkKind = "removed"
)

// Side selects which version of a hunk to keep when resolving.
type Side string

const (
	SideOurs   Side = "ours"
	SideTheirs Side = "theirs"
)

// Hunk is one classified block of a line-level diff. Concatenating OursLines
// across all hunks of a Diff reproduces the ours body's lines exactly, and
// likewise for TheirsLines. Ids are contiguous starting at 0.
type Hunk struct {
	ID              int
	Kind            HunkKind
	OursLines       []string
	TheirsLines     []string
	OursStartLine   int
	TheirsStartLine int
}

// Diff is the result of comparing two text bodies line by line. OursEOL and
// TheirsEOL record whether each body ended with a line terminator, so a
// rebuild can reproduce the original byte for byte.
type Diff struct {
	Hunks     []Hunk
	OursEOL   bool
	TheirsEOL bool
}

// SplitLines splits text on line terminators and reports whether the text
// ended with one. The single trailing empty element produced by splitting a
// terminated body is stripped, so "a\n" and "a" both yield one line.
func SplitLines(text string) ([]string, bool) {
	if text == "" {
		return nil, false
	}
	eol := strings.HasSuffix(text, "\n")
	if eol {
		text = strings.TrimSuffix(text, "\n")
	}
	return strings.Split(text, "\n"), eol
}

// JoinLines is the inverse of SplitLines.
func JoinLines(lines []string, eol bool) string {
	if len(lines) == 0 {
		return ""
	}
	body := strings.Join(lines, "\n")
	if eol {
		body += "\n"
	}
	return body
}

// Compute diffs two text bodies and classifies the edit script into ordered
// hunks. Diffing is total: any two inputs, including empty strings, produce a
// valid (possibly empty) hunk list.
func Compute(ours, theirs string) *Diff {
	oursLines, oursEOL := SplitLines(ours)
	theirsLines, theirsEOL := SplitLines(theirs)

	d := &Diff{OursEOL: oursEOL, TheirsEOL: theirsEOL}
	d.Hunks = classify(lineDiff(oursLines, theirsLines))

	// A trailing-terminator difference is a real change even when every line
	// matches. Carry it on a changed final hunk so side selection decides it.
	if oursEOL != theirsEOL {
		d.splitTrailingTerminator()
	}
	return d
}

// splitTrailingTerminator ensures the final hunk is a changed hunk when the
// two bodies disagree on the trailing line terminator. If the diff ends in an
// Unchanged hunk its last line is split off as Modified (same text on both
// sides, different terminator).
func (d *Diff) splitTrailingTerminator() {
	n := len(d.Hunks)
	if n == 0 {
		return
	}
	last := d.Hunks[n-1]
	if last.Kind != HunkUnchanged {
		return
	}

	lines := last.OursLines
	tail := lines[len(lines)-1]
	head := lines[:len(lines)-1]

	modified := Hunk{
		Kind:            HunkModified,
		OursLines:       []string{tail},
		TheirsLines:     []string{tail},
		OursStartLine:   last.OursStartLine + len(head),
		TheirsStartLine: last.TheirsStartLine + len(head),
	}

	if len(head) == 0 {
		d.Hunks[n-1] = modified
	} else {
		d.Hunks[n-1].OursLines = head
		d.Hunks[n-1].TheirsLines = head
		d.Hunks = append(d.Hunks, modified)
	}
	for i := range d.Hunks {
		d.Hunks[i].ID = i
	}
}

// lineDiff produces contiguous equal/delete/insert runs of whole lines using
// diffmatchpatch in line mode.
func lineDiff(oursLines, theirsLines []string) []diffmatchpatch.Diff {
	if len(oursLines) == 0 && len(theirsLines) == 0 {
		return nil
	}

	// Re-terminate every line so the line-mode transform has unambiguous
	// boundaries regardless of the original trailing terminator.
	oursText := terminated(oursLines)
	theirsText := terminated(theirsLines)

	dmp := diffmatchpatch.New()
	c1, c2, lineArray := dmp.DiffLinesToChars(oursText, theirsText)
	diffs := dmp.DiffMain(c1, c2, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)
	return coalesce(diffs)
}

func terminated(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// coalesce merges adjacent runs of the same operation so classification sees
// maximal runs.
func coalesce(diffs []diffmatchpatch.Diff) []diffmatchpatch.Diff {
	out := diffs[:0]
	for _, d := range diffs {
		if d.Text == "" {
			continue
		}
		if len(out) > 0 && out[len(out)-1].Type == d.Type {
			out[len(out)-1].Text += d.Text
			continue
		}
		out = append(out, d)
	}
	return out
}

// classify walks the raw op runs left to right. A delete run immediately
// followed by an insert run collapses into a single Modified hunk; lone
// deletes become Removed, lone inserts become Added.
func classify(diffs []diffmatchpatch.Diff) []Hunk {
	var hunks []Hunk
	oursLine, theirsLine := 1, 1

	appendHunk := func(kind HunkKind, oursLines, theirsLines []string) {
		hunks = append(hunks, Hunk{
			ID:              len(hunks),
			Kind:            kind,
			OursLines:       oursLines,
			TheirsLines:     theirsLines,
			OursStartLine:   oursLine,
			TheirsStartLine: theirsLine,
		})
		oursLine += len(oursLines)
		theirsLine += len(theirsLines)
	}

	for i := 0; i < len(diffs); i++ {
		switch diffs[i].Type {
		case diffmatchpatch.DiffEqual:
			lines := runLines(diffs[i].Text)
			appendHunk(HunkUnchanged, lines, lines)

		case diffmatchpatch.DiffDelete:
			removed := runLines(diffs[i].Text)
			if i+1 < len(diffs) && diffs[i+1].Type == diffmatchpatch.DiffInsert {
				inserted := runLines(diffs[i+1].Text)
				appendHunk(HunkModified, removed, inserted)
				i++
			} else {
				appendHunk(HunkRemoved, removed, nil)
			}

		case diffmatchpatch.DiffInsert:
			appendHunk(HunkAdded, nil, runLines(diffs[i].Text))
		}
	}

	return hunks
}

func runLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

// Rebuild reconstructs a body from the hunks, emitting the chosen side for
// every changed hunk (unresolved hunks default to ours). The trailing
// terminator follows the side chosen for the final hunk, which Compute
// guarantees is a changed hunk whenever the two bodies disagree on it, so an
// all-ours or all-theirs resolution round-trips byte for byte.
func (d *Diff) Rebuild(choices map[int]Side) string {
	var lines []string
	eol := d.OursEOL

	for _, h := range d.Hunks {
		side := SideOurs
		if h.Kind != HunkUnchanged {
			if s, ok := choices[h.ID]; ok {
				side = s
			}
		}
		if side == SideTheirs {
			lines = append(lines, h.TheirsLines...)
		} else {
			lines = append(lines, h.OursLines...)
		}
		if h.ID == len(d.Hunks)-1 && h.Kind != HunkUnchanged && side == SideTheirs {
			eol = d.TheirsEOL
		}
	}

	return JoinLines(lines, eol)
}

// Changed returns the hunks that differ between the two sides.
func (d *Diff) Changed() []Hunk {
	var out []Hunk
	for _, h := range d.Hunks {
		if h.Kind != HunkUnchanged {
			out = append(out, h)
		}
	}
	return out
}
