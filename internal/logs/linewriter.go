package logx

import (
	"bufio"
	"io"

	"github.com/rs/zerolog"
)

// LineWriter turns subprocess output into per-line zerolog events.
// It implements io.Writer so it can sit next to a capture buffer in
// io.MultiWriter.
type LineWriter struct {
	logger zerolog.Logger
	level  zerolog.Level
	pr     *io.PipeReader
	pw     *io.PipeWriter
	done   chan struct{}
}

// NewLineWriter derives a logger from base tagged with fields.
func NewLineWriter(base zerolog.Logger, fields map[string]string, level zerolog.Level) *LineWriter {
	w := base.With()
	for k, v := range fields {
		w = w.Str(k, v)
	}
	pr, pw := io.Pipe()
	lw := &LineWriter{logger: w.Logger(), level: level, pr: pr, pw: pw, done: make(chan struct{})}
	go lw.pipe()
	return lw
}

func (lw *LineWriter) Write(p []byte) (int, error) { return lw.pw.Write(p) }

// Close flushes the last partial line and waits for the reader to drain.
func (lw *LineWriter) Close() error {
	err := lw.pw.Close()
	<-lw.done
	return err
}

func (lw *LineWriter) pipe() {
	defer close(lw.done)
	sc := bufio.NewScanner(lw.pr)
	for sc.Scan() {
		lw.logger.WithLevel(lw.level).Msg(sc.Text())
	}
	// keep the writer side unblocked if the scanner gave up on a long line
	_, _ = io.Copy(io.Discard, lw.pr)
}
