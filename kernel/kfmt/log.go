// Package kfmt provides the logging and fatal error reporting facilities used
// by the memory-management packages.
package kfmt

import (
	"bytes"
	"io"
	"sort"

	"github.com/sirupsen/logrus"
)

// moduleField is the logrus field that carries the name of the module that
// emitted a log entry.
const moduleField = "module"

var (
	// earlyPrintBuffer captures log output until an output sink is
	// attached via SetOutputSink.
	earlyPrintBuffer ringBuffer

	logger = newLogger()
)

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(&earlyPrintBuffer)
	l.SetFormatter(&moduleFormatter{})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Logger returns a log entry tagged with the supplied module name.
func Logger(module string) *logrus.Entry {
	return logger.WithField(moduleField, module)
}

// SetLevel sets the minimum level of the messages that get logged.
func SetLevel(level logrus.Level) {
	logger.SetLevel(level)
}

// SetOutputSink sets the target for log output to w and copies any data
// accumulated in the early print buffer to it. Passing a nil writer
// redirects output back to the early print buffer.
func SetOutputSink(w io.Writer) {
	if w == nil {
		logger.SetOutput(&earlyPrintBuffer)
		return
	}

	logger.SetOutput(w)
	_, _ = io.Copy(w, &earlyPrintBuffer)
}

// moduleFormatter renders log entries as "[module] message key=value ...".
// Each line of a multi-line message receives the module prefix.
type moduleFormatter struct{}

// Format implements logrus.Formatter.
func (f *moduleFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var (
		buf    bytes.Buffer
		out    io.Writer = &buf
		module string
		keys   = make([]string, 0, len(entry.Data))
	)

	for key, value := range entry.Data {
		if key == moduleField {
			module, _ = value.(string)
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	if module != "" {
		out = &PrefixWriter{Sink: &buf, Prefix: []byte("[" + module + "] ")}
	}

	if entry.Level <= logrus.WarnLevel {
		io.WriteString(out, entry.Level.String()+": ")
	}
	io.WriteString(out, entry.Message)

	for _, key := range keys {
		io.WriteString(out, " "+key+"="+formatValue(entry.Data[key]))
	}

	if buf.Len() == 0 || buf.Bytes()[buf.Len()-1] != '\n' {
		buf.WriteByte('\n')
	}

	return buf.Bytes(), nil
}
