package launcher

import (
	"bytes"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"
)

// defaultMaxLineBytes bounds a single logged line. Longer lines are logged in
// pieces.
const defaultMaxLineBytes = 16 << 10

// lineLogger logs process output line by line and keeps the last bytes of it.
// Stdout and stderr share one lineLogger, so writes are serialized.
//
// Both '\n' and '\r' end a line, so progress bars that redraw with '\r' are
// logged one update per line.
type lineLogger struct {
	log log.Logger

	mu      sync.Mutex
	partial []byte
	afterCR bool // last terminator was '\r'; a '\n' right after it ends nothing
	tail    []byte
	max     int
	maxLine int
}

func newLineLogger(logger log.Logger, maxTail int) *lineLogger {
	return &lineLogger{log: logger, max: maxTail, maxLine: defaultMaxLineBytes}
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.partial = append(l.partial, p...)
	for {
		i := bytes.IndexAny(l.partial, "\r\n")
		if i < 0 {
			break
		}
		sep := l.partial[i]
		if i > 0 || sep == '\r' || !l.afterCR {
			l.emit(string(l.partial[:i]))
		}
		l.afterCR = sep == '\r'
		l.partial = l.partial[i+1:]
	}
	for len(l.partial) >= l.maxLine {
		l.emit(string(l.partial[:l.maxLine]))
		l.partial = l.partial[l.maxLine:]
		l.afterCR = false
	}
	// drop the consumed prefix so the buffer does not keep growing
	l.partial = append([]byte(nil), l.partial...)
	return len(p), nil
}

// Flush logs a trailing line without a newline.
func (l *lineLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.partial) > 0 {
		l.emit(string(l.partial))
		l.partial = nil
	}
	l.afterCR = false
}

func (l *lineLogger) emit(line string) {
	line = stripansi.Strip(line)
	l.log.Info(line)

	l.tail = append(l.tail, line...)
	l.tail = append(l.tail, '\n')
	if len(l.tail) > l.max {
		l.tail = l.tail[len(l.tail)-l.max:]
	}
}

// Tail returns the most recent output, ANSI-stripped.
func (l *lineLogger) Tail() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.TrimRight(string(l.tail), "\n")
}
