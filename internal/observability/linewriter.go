package observability

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
)

// LineWriter is an io.Writer that emits one log record per line written to it.
// Container output is streamed through it so sandbox logs carry the run context.
type LineWriter struct {
	ctx    context.Context
	level  slog.Level
	stream string

	mu  sync.Mutex
	buf bytes.Buffer
}

// NewLineWriter creates a LineWriter logging at level with a "stream" attribute.
func NewLineWriter(ctx context.Context, level slog.Level, stream string) *LineWriter {
	return &LineWriter{ctx: ctx, level: level, stream: stream}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			// Partial line, keep it for the next write.
			w.buf.Reset()
			w.buf.Write(line)
			break
		}
		w.emit(line)
	}
	return len(p), nil
}

// Flush emits any buffered partial line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.Bytes())
		w.buf.Reset()
	}
}

func (w *LineWriter) emit(line []byte) {
	text := string(bytes.TrimRight(line, "\r\n"))
	if text == "" {
		return
	}
	logAttrs(w.ctx, w.level, text, []slog.Attr{slog.String("stream", w.stream)})
}
