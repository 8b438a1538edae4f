package patch

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/dshills/stagehand/internal/git"
)

// DefaultContext is the number of unchanged lines kept around each change.
const DefaultContext = 3

// side is one half of a hunk: the lines it expects and whether its last
// line ends with a newline.
type side struct {
	lines []string
	eol   bool
}

// sides splits a hunk into its old and new halves.
func sides(h git.Hunk) (before, after side) {
	before.eol, after.eol = true, true
	var prev byte
	for _, l := range h.Lines {
		switch l.Type {
		case ' ':
			before.lines = append(before.lines, l.Content)
			after.lines = append(after.lines, l.Content)
		case '-':
			before.lines = append(before.lines, l.Content)
		case '+':
			after.lines = append(after.lines, l.Content)
		case '\\':
			switch prev {
			case ' ':
				before.eol, after.eol = false, false
			case '-':
				before.eol = false
			case '+':
				after.eol = false
			}
			continue
		default:
			continue
		}
		prev = l.Type
	}
	return before, after
}

// splitLines breaks text into lines without terminators and reports whether
// the final line was terminated.
func splitLines(text string) ([]string, bool) {
	if text == "" {
		return nil, true
	}
	eol := strings.HasSuffix(text, "\n")
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n"), eol
}

func joinLines(lines []string, eol bool) string {
	if len(lines) == 0 {
		return ""
	}
	s := strings.Join(lines, "\n")
	if eol {
		s += "\n"
	}
	return s
}

// Apply applies h to text. With reverse set the hunk is undone: its new
// side is located at NewStart and replaced by its old side.
//
// The expected lines are first looked for at the recorded position and then
// at the nearest offset where they match exactly. A hunk that cannot be
// located fails with git.ErrPatchMismatch.
func Apply(h git.Hunk, text string, reverse bool) (string, error) {
	from, to := sides(h)
	start := h.OldStart
	if reverse {
		from, to = to, from
		start = h.NewStart
	}

	lines, eol := splitLines(text)
	pos := start - 1
	if len(from.lines) == 0 {
		pos = start
	}
	pos, ok := locate(lines, from.lines, pos)
	if !ok {
		return "", fmt.Errorf("hunk %s: %w", h.FormatHeader(), git.ErrPatchMismatch)
	}

	end := pos + len(from.lines)
	atEnd := end == len(lines)
	if atEnd && len(from.lines) > 0 && from.eol != eol {
		return "", fmt.Errorf("hunk %s: end of file newline differs: %w", h.FormatHeader(), git.ErrPatchMismatch)
	}

	out := make([]string, 0, len(lines)-len(from.lines)+len(to.lines))
	out = append(out, lines[:pos]...)
	out = append(out, to.lines...)
	out = append(out, lines[end:]...)

	resultEOL := eol
	if atEnd {
		// Lines before the hunk were followed by more text, so they had a
		// terminator; the hunk only decides when it supplies the last line.
		resultEOL = len(to.lines) == 0 || to.eol
	}
	return joinLines(out, resultEOL), nil
}

// locate finds want in lines, preferring pos and then the closest offset.
func locate(lines, want []string, pos int) (int, bool) {
	if len(want) == 0 {
		return pos, pos >= 0 && pos <= len(lines)
	}
	last := len(lines) - len(want)
	if last < 0 {
		return 0, false
	}
	if pos >= 0 && pos <= last && matchAt(lines, want, pos) {
		return pos, true
	}
	for off := 1; pos-off >= 0 || pos+off <= last; off++ {
		if p := pos - off; p >= 0 && p <= last && matchAt(lines, want, p) {
			return p, true
		}
		if p := pos + off; p >= 0 && p <= last && matchAt(lines, want, p) {
			return p, true
		}
	}
	return 0, false
}

func matchAt(lines, want []string, pos int) bool {
	for i, w := range want {
		if lines[pos+i] != w {
			return false
		}
	}
	return true
}

// lineOp is a single line of a line level diff.
type lineOp struct {
	kind    byte
	content string
	noEOL   bool
}

// lineOps runs a line mode diff of old and new.
func lineOps(oldText, newText string) []lineOp {
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lineArray)

	var ops []lineOp
	for _, d := range diffs {
		kind := byte(' ')
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			kind = '-'
		case diffmatchpatch.DiffInsert:
			kind = '+'
		}
		text := d.Text
		for text != "" {
			i := strings.IndexByte(text, '\n')
			if i < 0 {
				ops = append(ops, lineOp{kind: kind, content: text, noEOL: true})
				break
			}
			ops = append(ops, lineOp{kind: kind, content: text[:i]})
			text = text[i+1:]
		}
	}
	return ops
}

// FileHunks computes unified diff hunks turning oldText into newText, with
// context unchanged lines around each change. Changes separated by at most
// twice the context are merged into one hunk.
func FileHunks(oldText, newText string, context int) []git.Hunk {
	if context < 0 {
		context = 0
	}
	ops := lineOps(oldText, newText)

	var hunks []git.Hunk
	for i := 0; i < len(ops); {
		if ops[i].kind == ' ' {
			i++
			continue
		}
		first := max(0, i-context)
		lastChange := i
		for k := i; k < len(ops); k++ {
			if ops[k].kind != ' ' {
				lastChange = k
			} else if k-lastChange > 2*context {
				break
			}
		}
		stop := min(len(ops), lastChange+context+1)
		hunks = append(hunks, buildHunk(ops, first, stop))
		i = stop
	}
	return hunks
}

func buildHunk(ops []lineOp, first, stop int) git.Hunk {
	oldNo, newNo := 1, 1
	for _, op := range ops[:first] {
		if op.kind != '+' {
			oldNo++
		}
		if op.kind != '-' {
			newNo++
		}
	}

	h := git.Hunk{OldStart: oldNo, NewStart: newNo}
	for _, op := range ops[first:stop] {
		dl := git.DiffLine{Type: op.kind, Content: op.content}
		if op.kind != '+' {
			dl.OldLineNo = oldNo
			oldNo++
			h.OldLines++
		}
		if op.kind != '-' {
			dl.NewLineNo = newNo
			newNo++
			h.NewLines++
		}
		h.Lines = append(h.Lines, dl)
		if op.noEOL {
			h.Lines = append(h.Lines, git.DiffLine{Type: '\\'})
		}
	}
	if h.OldLines == 0 {
		h.OldStart--
	}
	if h.NewLines == 0 {
		h.NewStart--
	}
	h.Header = h.FormatHeader()
	return h
}

// stats counts added and deleted lines across hunks.
func stats(hunks []git.Hunk) git.DiffStats {
	var s git.DiffStats
	for _, h := range hunks {
		for _, l := range h.Lines {
			switch l.Type {
			case '+':
				s.Additions++
			case '-':
				s.Deletions++
			}
		}
	}
	return s
}
