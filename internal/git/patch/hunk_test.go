package patch

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/stagehand/internal/git"
)

func numbered(n int, edits map[int]string) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		line := fmt.Sprintf("l%d", i)
		if e, ok := edits[i]; ok {
			line = e
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func TestFileHunksSingleChange(t *testing.T) {
	hunks := FileHunks("1\n2\n3\n", "1\nX\n3\n", DefaultContext)
	require.Len(t, hunks, 1)

	h := hunks[0]
	assert.Equal(t, "@@ -1,3 +1,3 @@", h.Header)
	assert.Equal(t, []git.DiffLine{
		{Type: ' ', Content: "1", OldLineNo: 1, NewLineNo: 1},
		{Type: '-', Content: "2", OldLineNo: 2},
		{Type: '+', Content: "X", NewLineNo: 2},
		{Type: ' ', Content: "3", OldLineNo: 3, NewLineNo: 3},
	}, h.Lines)
}

func TestFileHunksSplitsDistantChanges(t *testing.T) {
	old := numbered(20, nil)
	cur := numbered(20, map[int]string{2: "L2", 18: "L18"})

	hunks := FileHunks(old, cur, DefaultContext)
	require.Len(t, hunks, 2)
	assert.Equal(t, "@@ -1,5 +1,5 @@", hunks[0].Header)
	assert.Equal(t, "@@ -15,6 +15,6 @@", hunks[1].Header)

	merged := FileHunks(old, cur, 8)
	assert.Len(t, merged, 1)
}

func TestFileHunksNewAndDeletedFile(t *testing.T) {
	added := FileHunks("", "x\ny\n", DefaultContext)
	require.Len(t, added, 1)
	assert.Equal(t, 0, added[0].OldStart)
	assert.Equal(t, 1, added[0].NewStart)
	assert.Equal(t, 2, added[0].NewLines)

	deleted := FileHunks("x\n", "", DefaultContext)
	require.Len(t, deleted, 1)
	assert.Equal(t, "@@ -1 +0,0 @@", deleted[0].Header)
}

func TestFileHunksMarksMissingNewline(t *testing.T) {
	hunks := FileHunks("a\n", "a", DefaultContext)
	require.Len(t, hunks, 1)
	assert.Equal(t, "@@ -1 +1 @@\n-a\n+a\n"+git.NoNewlineMarker+"\n", hunks[0].String())
}

func TestFileHunksIdenticalTexts(t *testing.T) {
	assert.Empty(t, FileHunks("same\n", "same\n", DefaultContext))
}

func TestApplyRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		old  string
		new  string
	}{
		{"modify middle", "1\n2\n3\n", "1\nX\n3\n"},
		{"insert at start", "b\nc\n", "a\nb\nc\n"},
		{"append without newline", "a\nb\n", "a\nb\nc"},
		{"drop trailing newline", "a\n", "a"},
		{"add trailing newline", "a\nb", "a\nb\n"},
		{"new file", "", "x\ny\n"},
		{"delete everything", "x\n", ""},
		{"delete last lines", "a\nb\nc\n", "a\n"},
		{"two hunks", numbered(20, nil), numbered(20, map[int]string{2: "L2", 18: "L18"})},
		{"growing hunks", numbered(30, nil), strings.Replace(numbered(30, nil), "l3\n", "l3\nx\ny\n", 1) + "tail\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hunks := FileHunks(tt.old, tt.new, DefaultContext)
			require.NotEmpty(t, hunks)

			forward := tt.old
			for i := len(hunks) - 1; i >= 0; i-- {
				var err error
				forward, err = Apply(hunks[i], forward, false)
				require.NoError(t, err)
			}
			assert.Equal(t, tt.new, forward)

			backward := tt.new
			for i := len(hunks) - 1; i >= 0; i-- {
				var err error
				backward, err = Apply(hunks[i], backward, true)
				require.NoError(t, err)
			}
			assert.Equal(t, tt.old, backward)
		})
	}
}

func TestApplyFindsShiftedContext(t *testing.T) {
	hunks := FileHunks("a\nb\nc\n", "a\nB\nc\n", 1)
	require.Len(t, hunks, 1)

	got, err := Apply(hunks[0], "new first\nsecond\na\nb\nc\n", false)
	require.NoError(t, err)
	assert.Equal(t, "new first\nsecond\na\nB\nc\n", got)
}

func TestApplyMismatch(t *testing.T) {
	hunks := FileHunks("a\nb\nc\n", "a\nB\nc\n", 1)
	require.Len(t, hunks, 1)

	_, err := Apply(hunks[0], "x\ny\nz\n", false)
	assert.True(t, errors.Is(err, git.ErrPatchMismatch))

	_, err = Apply(hunks[0], "", false)
	assert.True(t, errors.Is(err, git.ErrPatchMismatch))

	// Same lines, but the hunk expects a trailing newline.
	_, err = Apply(hunks[0], "a\nb\nc", false)
	assert.True(t, errors.Is(err, git.ErrPatchMismatch))
}

func TestApplyParsedHunk(t *testing.T) {
	d := git.ParseUnified(`diff --git a/f.txt b/f.txt
--- a/f.txt
+++ b/f.txt
@@ -2,2 +2,3 @@
 two
-three
+THREE
+four
`)
	require.Len(t, d.Files, 1)
	require.Len(t, d.Files[0].Hunks, 1)

	got, err := Apply(d.Files[0].Hunks[0], "one\ntwo\nthree\n", false)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nTHREE\nfour\n", got)
}
