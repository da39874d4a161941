package kfmt

import "io"

// PrefixWriter is an io.Writer that wraps another io.Writer and injects a
// prefix at the beginning of each line. The log formatter uses it to tag
// every line of a multi-line message with its module name.
type PrefixWriter struct {
	// A writer where all writes get sent to.
	Sink io.Writer

	// The prefix injected at the beginning of each line.
	Prefix []byte

	// midLine is set while the last written byte was not a line feed.
	midLine bool
}

// Write writes len(p) bytes from p to the underlying writer. The injected
// prefixes are not included in the returned byte count.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	var written, lineStart int

	for lineStart < len(p) {
		if !w.midLine {
			if _, err := w.Sink.Write(w.Prefix); err != nil {
				return written, err
			}
			w.midLine = true
		}

		lineEnd := lineStart
		for lineEnd < len(p) && p[lineEnd] != '\n' {
			lineEnd++
		}
		if lineEnd < len(p) {
			// include the line feed and start a new line
			lineEnd++
			w.midLine = false
		}

		n, err := w.Sink.Write(p[lineStart:lineEnd])
		written += n
		if err != nil {
			return written, err
		}
		lineStart = lineEnd
	}

	return written, nil
}
