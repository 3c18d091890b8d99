package internal

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	patchContext = 3
	binarySniff  = 8000
)

func isBinary(data []byte) bool {
	if len(data) > binarySniff {
		data = data[:binarySniff]
	}
	return bytes.IndexByte(data, 0) >= 0
}

// linePatch renders a line-level patch from one version of name to another.
// A nil side means the file does not exist there. Runs of unchanged lines
// longer than twice the context are collapsed.
func linePatch(name string, from, to []byte) string {
	var buf strings.Builder

	fromName, toName := "a/"+name, "b/"+name
	if from == nil {
		fromName = "/dev/null"
	}
	if to == nil {
		toName = "/dev/null"
	}

	if isBinary(from) || isBinary(to) {
		fmt.Fprintf(&buf, "Binary files %s and %s differ\n", fromName, toName)
		return buf.String()
	}

	fmt.Fprintf(&buf, "--- %s\n+++ %s\n", fromName, toName)

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(string(from), string(to))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	for i, d := range diffs {
		text := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			writeLines(&buf, "+", text)
		case diffmatchpatch.DiffDelete:
			writeLines(&buf, "-", text)
		case diffmatchpatch.DiffEqual:
			head, tail := patchContext, patchContext
			if i == 0 {
				head = 0
			}
			if i == len(diffs)-1 {
				tail = 0
			}
			if len(text) <= head+tail {
				writeLines(&buf, " ", text)
				continue
			}
			writeLines(&buf, " ", text[:head])
			fmt.Fprintf(&buf, "@@ %d unchanged lines @@\n", len(text)-head-tail)
			writeLines(&buf, " ", text[len(text)-tail:])
		}
	}

	return buf.String()
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

func writeLines(buf *strings.Builder, prefix string, lines []string) {
	for _, line := range lines {
		buf.WriteString(prefix)
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
}
