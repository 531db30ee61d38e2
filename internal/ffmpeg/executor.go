package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"

	"github.com/rs/zerolog"

	"github.com/you/emoji-grid/internal/jobs"
	logx "github.com/you/emoji-grid/internal/logs"
)

// Runner executes one transcoder invocation and waits for it to exit.
type Runner interface {
	Run(ctx context.Context, stage string, args []string) error
}

// Exec runs the ffmpeg binary at Path.
type Exec struct {
	Path string
}

// Run starts the process, streams its stderr into debug logs, and reaps it.
// A non-zero exit becomes a *jobs.SubprocessError carrying the captured
// stderr.
func (e Exec) Run(ctx context.Context, stage string, args []string) error {
	path := e.Path
	if path == "" {
		path = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, path, args...)

	var stderr bytes.Buffer
	lw := logx.NewLineWriter(logx.FromCtx(ctx), map[string]string{"stage": stage}, zerolog.DebugLevel)
	cmd.Stderr = io.MultiWriter(&stderr, lw)

	err := cmd.Run()
	_ = lw.Close()
	if err == nil {
		return nil
	}

	code := -1
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		code = ee.ExitCode()
	}
	return &jobs.SubprocessError{Stage: stage, ExitCode: code, Stderr: stderr.String(), Err: err}
}
