package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDiff = `diff --git a/a.txt b/a.txt
index 01e79c3..4f1b4f1 100644
--- a/a.txt
+++ b/a.txt
@@ -1,3 +1,3 @@
 1
-2
+X
 3
diff --git a/new.txt b/new.txt
new file mode 100644
index 0000000..3b18e51
--- /dev/null
+++ b/new.txt
@@ -0,0 +1 @@
+hello
\ No newline at end of file
`

func TestParseUnified(t *testing.T) {
	d := ParseUnified(sampleDiff)
	require.Len(t, d.Files, 2)

	a := d.Files[0]
	assert.Equal(t, "a.txt", a.OldPath)
	assert.Equal(t, "a.txt", a.NewPath)
	assert.Equal(t, Modified, a.Status)
	require.Len(t, a.Hunks, 1)
	h := a.Hunks[0]
	assert.Equal(t, 1, h.OldStart)
	assert.Equal(t, 3, h.OldLines)
	assert.Equal(t, 1, h.NewStart)
	assert.Equal(t, 3, h.NewLines)
	require.Len(t, h.Lines, 4)
	assert.Equal(t, DiffLine{Type: '-', Content: "2", OldLineNo: 2}, h.Lines[1])
	assert.Equal(t, DiffLine{Type: '+', Content: "X", NewLineNo: 2}, h.Lines[2])

	n := d.Files[1]
	assert.Equal(t, Added, n.Status)
	assert.Equal(t, "", n.OldPath)
	assert.Equal(t, "new.txt", n.NewPath)
	require.Len(t, n.Hunks, 1)
	assert.Equal(t, 0, n.Hunks[0].OldStart)
	assert.Equal(t, 0, n.Hunks[0].OldLines)
	assert.Equal(t, 1, n.Hunks[0].NewLines)
	assert.Equal(t, byte('\\'), n.Hunks[0].Lines[1].Type)

	assert.Equal(t, DiffStats{Additions: 2, Deletions: 1}, d.Stats)
	assert.Equal(t, []FileChange{{"a.txt", Modified}, {"new.txt", Added}}, d.Changes())
}

func TestParseHunkHeader(t *testing.T) {
	tests := []struct {
		line string
		want Hunk
		ok   bool
	}{
		{"@@ -1,3 +1,4 @@", Hunk{OldStart: 1, OldLines: 3, NewStart: 1, NewLines: 4}, true},
		{"@@ -5 +5 @@ func main()", Hunk{OldStart: 5, OldLines: 1, NewStart: 5, NewLines: 1}, true},
		{"@@ -0,0 +1,2 @@", Hunk{OldStart: 0, OldLines: 0, NewStart: 1, NewLines: 2}, true},
		{"@@ bogus @@", Hunk{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := ParseHunkHeader(tt.line)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want.OldStart, got.OldStart)
				assert.Equal(t, tt.want.OldLines, got.OldLines)
				assert.Equal(t, tt.want.NewStart, got.NewStart)
				assert.Equal(t, tt.want.NewLines, got.NewLines)
			}
		})
	}
}

func TestHunkStringRoundTrip(t *testing.T) {
	d := ParseUnified(sampleDiff)
	h := d.Files[1].Hunks[0]
	h.Header = ""
	assert.Equal(t, "@@ -0,0 +1 @@\n+hello\n"+NoNewlineMarker+"\n", h.String())
}

func TestHunkCoversWholeFile(t *testing.T) {
	assert.True(t, Hunk{OldStart: 1, NewStart: 4}.CoversWholeFile())
	assert.True(t, Hunk{OldStart: 0, NewStart: 1}.CoversWholeFile())
	assert.False(t, Hunk{OldStart: 7, NewStart: 8}.CoversWholeFile())
}

func TestDiffCloneIsDeep(t *testing.T) {
	d := ParseUnified(sampleDiff)
	c := d.Clone()
	c.Files[0].Hunks[0].Lines[0].Content = "changed"
	c.Files[0].NewPath = "other"
	assert.Equal(t, "1", d.Files[0].Hunks[0].Lines[0].Content)
	assert.Equal(t, "a.txt", d.Files[0].NewPath)

	var nilDiff *Diff
	assert.Nil(t, nilDiff.Clone())
}

func TestDiffFile(t *testing.T) {
	d := ParseUnified(sampleDiff)
	f, ok := d.File("new.txt")
	require.True(t, ok)
	assert.Equal(t, Added, f.Status)
	_, ok = d.File("missing")
	assert.False(t, ok)
}
