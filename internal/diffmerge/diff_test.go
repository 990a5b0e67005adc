package diffmerge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allChanged(d *Diff, side Side) map[int]Side {
	choices := make(map[int]Side)
	for _, h := range d.Hunks {
		if h.Kind != HunkUnchanged {
			choices[h.ID] = side
		}
	}
	return choices
}

func TestSplitJoinLines(t *testing.T) {
	cases := []struct {
		text  string
		lines []string
		eol   bool
	}{
		{"", nil, false},
		{"a", []string{"a"}, false},
		{"a\n", []string{"a"}, true},
		{"\n", []string{""}, true},
		{"a\nb", []string{"a", "b"}, false},
		{"a\nb\n", []string{"a", "b"}, true},
	}
	for _, tc := range cases {
		lines, eol := SplitLines(tc.text)
		assert.Equal(t, tc.lines, lines, "split %q", tc.text)
		assert.Equal(t, tc.eol, eol, "eol %q", tc.text)
		assert.Equal(t, tc.text, JoinLines(lines, eol), "rejoin %q", tc.text)
	}
}

func TestComputeSingleLineModification(t *testing.T) {
	d := Compute("a\nb\nc\n", "a\nx\nc\n")
	require.Len(t, d.Hunks, 3)

	assert.Equal(t, HunkUnchanged, d.Hunks[0].Kind)
	assert.Equal(t, []string{"a"}, d.Hunks[0].OursLines)

	assert.Equal(t, HunkModified, d.Hunks[1].Kind)
	assert.Equal(t, []string{"b"}, d.Hunks[1].OursLines)
	assert.Equal(t, []string{"x"}, d.Hunks[1].TheirsLines)
	assert.Equal(t, 2, d.Hunks[1].OursStartLine)
	assert.Equal(t, 2, d.Hunks[1].TheirsStartLine)

	assert.Equal(t, HunkUnchanged, d.Hunks[2].Kind)
	assert.Equal(t, []string{"c"}, d.Hunks[2].OursLines)

	// resolving the modified hunk to theirs yields the theirs body
	got := d.Rebuild(map[int]Side{1: SideTheirs})
	assert.Equal(t, "a\nx\nc\n", got)
}

func TestComputeAddedAndRemoved(t *testing.T) {
	d := Compute("a\nb\n", "a\nb\nc\n")
	require.Len(t, d.Hunks, 2)
	assert.Equal(t, HunkUnchanged, d.Hunks[0].Kind)
	assert.Equal(t, HunkAdded, d.Hunks[1].Kind)
	assert.Empty(t, d.Hunks[1].OursLines)
	assert.Equal(t, []string{"c"}, d.Hunks[1].TheirsLines)
	assert.Equal(t, 3, d.Hunks[1].OursStartLine)

	d = Compute("a\nb\nc\n", "a\nc\n")
	require.Len(t, d.Hunks, 3)
	assert.Equal(t, HunkRemoved, d.Hunks[1].Kind)
	assert.Equal(t, []string{"b"}, d.Hunks[1].OursLines)
	assert.Empty(t, d.Hunks[1].TheirsLines)
}

func TestComputeIDsContiguous(t *testing.T) {
	d := Compute("a\nb\nc\nd\n", "x\nb\ny\nd\nz\n")
	for i, h := range d.Hunks {
		assert.Equal(t, i, h.ID)
	}
}

func TestComputeEmptyInputs(t *testing.T) {
	assert.Empty(t, Compute("", "").Hunks)

	d := Compute("", "a\nb\n")
	require.Len(t, d.Hunks, 1)
	assert.Equal(t, HunkAdded, d.Hunks[0].Kind)

	d = Compute("a\nb\n", "")
	require.Len(t, d.Hunks, 1)
	assert.Equal(t, HunkRemoved, d.Hunks[0].Kind)
}

func TestRoundTripProperty(t *testing.T) {
	pairs := [][2]string{
		{"a\nb\nc\n", "a\nx\nc\n"},
		{"", "hello\n"},
		{"one\ntwo\nthree", "one\ntwo\nthree\nfour"},
		{"a\nb\nc\n", "c\nb\na\n"},
		{"x", "y"},
		{"a\nb", "a\nb\n"},
		{"a\nb\n", "a\nb"},
		{"\n", "x"},
		{"same\nbody\n", "same\nbody\n"},
		{"lorem\nipsum\ndolor\nsit\namet\n", "lorem\ndolor\namet\nconsectetur\n"},
	}

	for _, p := range pairs {
		ours, theirs := p[0], p[1]
		d := Compute(ours, theirs)

		assert.Equal(t, ours, d.Rebuild(nil), "all-ours %q vs %q", ours, theirs)
		assert.Equal(t, ours, d.Rebuild(allChanged(d, SideOurs)), "explicit all-ours %q vs %q", ours, theirs)
		assert.Equal(t, theirs, d.Rebuild(allChanged(d, SideTheirs)), "all-theirs %q vs %q", ours, theirs)
	}
}

func TestLineCoverageProperty(t *testing.T) {
	ours := "alpha\nbeta\ngamma\ndelta\n"
	theirs := "alpha\nBETA\ngamma\nepsilon\nzeta\n"
	d := Compute(ours, theirs)

	var oursLines, theirsLines []string
	for _, h := range d.Hunks {
		oursLines = append(oursLines, h.OursLines...)
		theirsLines = append(theirsLines, h.TheirsLines...)
	}

	wantOurs, _ := SplitLines(ours)
	wantTheirs, _ := SplitLines(theirs)
	assert.Equal(t, wantOurs, oursLines)
	assert.Equal(t, wantTheirs, theirsLines)
}

func TestTrailingTerminatorOnlyDifference(t *testing.T) {
	d := Compute("a\nb", "a\nb\n")

	// no spurious extra line, but the terminator change must be resolvable
	changed := d.Changed()
	require.Len(t, changed, 1)
	assert.Equal(t, HunkModified, changed[0].Kind)
	assert.Equal(t, changed[0].OursLines, changed[0].TheirsLines)

	assert.Equal(t, "a\nb", d.Rebuild(nil))
	assert.Equal(t, "a\nb\n", d.Rebuild(allChanged(d, SideTheirs)))
}

func TestDeleteInsertMergesIntoModified(t *testing.T) {
	// a run of removed lines directly followed by inserted lines is one
	// "this region changed" hunk, not two single-sided hunks
	d := Compute("keep\nold1\nold2\nkeep2\n", "keep\nnew1\nnew2\nnew3\nkeep2\n")

	var kinds []HunkKind
	for _, h := range d.Hunks {
		kinds = append(kinds, h.Kind)
	}
	assert.Equal(t, []HunkKind{HunkUnchanged, HunkModified, HunkUnchanged}, kinds)
	assert.Equal(t, []string{"old1", "old2"}, d.Hunks[1].OursLines)
	assert.Equal(t, []string{"new1", "new2", "new3"}, d.Hunks[1].TheirsLines)
}

func TestComputeLargeBody(t *testing.T) {
	var a, b strings.Builder
	for i := 0; i < 500; i++ {
		line := strings.Repeat("x", i%40) + "\n"
		a.WriteString(line)
		if i%97 == 0 {
			b.WriteString("changed\n")
		} else {
			b.WriteString(line)
		}
	}

	d := Compute(a.String(), b.String())
	assert.Equal(t, a.String(), d.Rebuild(nil))
	assert.Equal(t, b.String(), d.Rebuild(allChanged(d, SideTheirs)))
}
