package git

import (
	"fmt"
	"strconv"
	"strings"
)

// Hunk is one contiguous region of a textual diff.
type Hunk struct {
	// OldStart is the first line of the region in the old text (1-based).
	// When OldLines is 0 it is the line after which the region is inserted.
	OldStart int

	// OldLines is the number of old lines the region covers.
	OldLines int

	// NewStart is the first line of the region in the new text (1-based).
	NewStart int

	// NewLines is the number of new lines the region covers.
	NewLines int

	// Header is the hunk header (e.g., "@@ -1,3 +1,4 @@").
	Header string

	// Lines are the diff lines in this hunk.
	Lines []DiffLine
}

// DiffLine represents a single line in a diff.
type DiffLine struct {
	// Type is the line type: ' ' (context), '+' (addition), '-' (deletion),
	// or '\\' for the "no newline at end of file" marker.
	Type byte

	// Content is the line content without the type prefix or line terminator.
	Content string

	// OldLineNo is the line number in the old file (0 for additions).
	OldLineNo int

	// NewLineNo is the line number in the new file (0 for deletions).
	NewLineNo int
}

// NoNewlineMarker is the text git prints after a line lacking a terminator.
const NoNewlineMarker = `\ No newline at end of file`

// CoversWholeFile reports whether the hunk is treated as spanning the whole
// file for staging purposes. This is a heuristic: a hunk that merely starts
// at line 1 also qualifies, even when later lines of the file are untouched.
func (h Hunk) CoversWholeFile() bool {
	return h.OldStart == 1 || h.NewStart == 1
}

// FormatHeader renders the "@@ -a,b +c,d @@" header from the hunk ranges.
func (h Hunk) FormatHeader() string {
	return fmt.Sprintf("@@ -%s +%s @@", formatRange(h.OldStart, h.OldLines), formatRange(h.NewStart, h.NewLines))
}

func formatRange(start, count int) string {
	if count == 1 {
		return strconv.Itoa(start)
	}
	return fmt.Sprintf("%d,%d", start, count)
}

// String renders the hunk in unified diff form.
func (h Hunk) String() string {
	var b strings.Builder
	header := h.Header
	if header == "" {
		header = h.FormatHeader()
	}
	b.WriteString(header)
	b.WriteByte('\n')
	for _, l := range h.Lines {
		if l.Type == '\\' {
			b.WriteString(NoNewlineMarker)
		} else {
			b.WriteByte(l.Type)
			b.WriteString(l.Content)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Clone returns a deep copy of the hunk.
func (h Hunk) Clone() Hunk {
	c := h
	c.Lines = append([]DiffLine(nil), h.Lines...)
	return c
}

// FileDiff is the difference for a single path.
type FileDiff struct {
	// OldPath is the path in the old version.
	OldPath string

	// NewPath is the path in the new version.
	NewPath string

	// Status is the change type.
	Status DeltaStatus

	// OldID and NewID are the blob ids on each side; empty when absent.
	OldID string
	NewID string

	// IsBinary indicates either side is not text.
	IsBinary bool

	// Hunks contains the diff hunks, when they have been computed.
	Hunks []Hunk

	// Stats contains line statistics.
	Stats DiffStats
}

// Path returns the new path, falling back to the old path for deletions.
func (f *FileDiff) Path() string {
	if f.NewPath != "" {
		return f.NewPath
	}
	return f.OldPath
}

// DiffStats contains diff statistics.
type DiffStats struct {
	// Additions is the number of added lines.
	Additions int

	// Deletions is the number of deleted lines.
	Deletions int
}

// Diff is the difference between two snapshots.
type Diff struct {
	// OldID and NewID identify the compared commits (or EmptyTreeID).
	OldID string
	NewID string

	// Files contains the per-file diffs, ordered by path.
	Files []FileDiff

	// Stats contains aggregate statistics.
	Stats DiffStats
}

// Clone returns a deep copy that stays valid after the cache drops the original.
func (d *Diff) Clone() *Diff {
	if d == nil {
		return nil
	}
	c := *d
	c.Files = make([]FileDiff, len(d.Files))
	for i, f := range d.Files {
		cf := f
		cf.Hunks = make([]Hunk, len(f.Hunks))
		for j, h := range f.Hunks {
			cf.Hunks[j] = h.Clone()
		}
		c.Files[i] = cf
	}
	return &c
}

// File returns the file diff touching path on either side.
func (d *Diff) File(path string) (*FileDiff, bool) {
	for i := range d.Files {
		if d.Files[i].NewPath == path || d.Files[i].OldPath == path {
			return &d.Files[i], true
		}
	}
	return nil, false
}

// Changes lists every file whose status is not unmodified.
func (d *Diff) Changes() []FileChange {
	changes := make([]FileChange, 0, len(d.Files))
	for _, f := range d.Files {
		if f.Status == Unmodified {
			continue
		}
		changes = append(changes, FileChange{Path: f.Path(), Status: f.Status})
	}
	return changes
}

// ParseUnified parses `git diff` style output into a Diff.
func ParseUnified(output string) *Diff {
	diff := &Diff{}
	if output == "" {
		return diff
	}

	lines := strings.Split(output, "\n")
	var currentFile *FileDiff
	var currentHunk *Hunk
	oldLine, newLine := 0, 0

	flushHunk := func() {
		if currentFile != nil && currentHunk != nil {
			currentFile.Hunks = append(currentFile.Hunks, *currentHunk)
		}
		currentHunk = nil
	}
	flushFile := func() {
		flushHunk()
		if currentFile != nil {
			diff.Files = append(diff.Files, *currentFile)
		}
		currentFile = nil
	}

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			flushFile()
			currentFile = &FileDiff{Status: Modified}
			parts := strings.SplitN(line, " ", 4)
			if len(parts) >= 4 {
				currentFile.OldPath = strings.TrimPrefix(parts[2], "a/")
				currentFile.NewPath = strings.TrimPrefix(parts[3], "b/")
			}
			continue
		case currentFile == nil:
			continue
		case currentHunk == nil && strings.HasPrefix(line, "new file mode "):
			currentFile.Status = Added
			continue
		case currentHunk == nil && strings.HasPrefix(line, "deleted file mode "):
			currentFile.Status = Deleted
			continue
		case currentHunk == nil && strings.HasPrefix(line, "similarity index "):
			currentFile.Status = Renamed
			continue
		case currentHunk == nil && strings.HasPrefix(line, "copy from "):
			currentFile.Status = Copied
			currentFile.OldPath = strings.TrimPrefix(line, "copy from ")
			continue
		case currentHunk == nil && strings.HasPrefix(line, "rename from "):
			currentFile.OldPath = strings.TrimPrefix(line, "rename from ")
			continue
		case currentHunk == nil && strings.HasPrefix(line, "rename to "):
			currentFile.NewPath = strings.TrimPrefix(line, "rename to ")
			continue
		case strings.HasPrefix(line, "Binary files "):
			currentFile.IsBinary = true
			continue
		case currentHunk == nil && strings.HasPrefix(line, "--- "):
			if p := strings.TrimPrefix(line, "--- "); p == "/dev/null" {
				currentFile.OldPath = ""
			} else {
				currentFile.OldPath = strings.TrimPrefix(p, "a/")
			}
			continue
		case currentHunk == nil && strings.HasPrefix(line, "+++ "):
			if p := strings.TrimPrefix(line, "+++ "); p == "/dev/null" {
				currentFile.NewPath = ""
			} else {
				currentFile.NewPath = strings.TrimPrefix(p, "b/")
			}
			continue
		case strings.HasPrefix(line, "@@ "):
			flushHunk()
			h, ok := ParseHunkHeader(line)
			if !ok {
				continue
			}
			currentHunk = &h
			oldLine = h.OldStart
			newLine = h.NewStart
			continue
		}

		if currentHunk == nil || len(line) == 0 {
			continue
		}

		dl := DiffLine{Type: line[0], Content: line[1:]}
		switch line[0] {
		case '+':
			dl.NewLineNo = newLine
			newLine++
			currentFile.Stats.Additions++
			diff.Stats.Additions++
		case '-':
			dl.OldLineNo = oldLine
			oldLine++
			currentFile.Stats.Deletions++
			diff.Stats.Deletions++
		case ' ':
			dl.OldLineNo = oldLine
			dl.NewLineNo = newLine
			oldLine++
			newLine++
		case '\\':
			dl.Content = ""
		default:
			continue
		}
		currentHunk.Lines = append(currentHunk.Lines, dl)
	}
	flushFile()

	return diff
}

// ParseHunkHeader parses "@@ -a,b +c,d @@ section" into a Hunk without lines.
func ParseHunkHeader(line string) (Hunk, bool) {
	h := Hunk{Header: line}
	parts := strings.SplitN(line, "@@", 3)
	if len(parts) < 2 {
		return h, false
	}
	var sawOld, sawNew bool
	for _, r := range strings.Fields(parts[1]) {
		switch r[0] {
		case '-':
			h.OldStart, h.OldLines, sawOld = parseRange(r[1:])
		case '+':
			h.NewStart, h.NewLines, sawNew = parseRange(r[1:])
		}
	}
	return h, sawOld && sawNew
}

func parseRange(s string) (start, count int, ok bool) {
	nums := strings.SplitN(s, ",", 2)
	start, err := strconv.Atoi(nums[0])
	if err != nil {
		return 0, 0, false
	}
	count = 1
	if len(nums) == 2 {
		if count, err = strconv.Atoi(nums[1]); err != nil {
			return 0, 0, false
		}
	}
	return start, count, true
}
