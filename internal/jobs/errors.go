package jobs

import (
	"fmt"
	"strings"
)

// ValidationError rejects a job before any remote side effect.
type ValidationError struct {
	Count int
	Limit int
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Msg != "" {
		return "validation: " + e.Msg
	}
	return fmt.Sprintf("validation: %d tiles exceed the limit of %d", e.Count, e.Limit)
}

// RemoteError is a failed call to the sticker API. Exhausted rate-limit
// retries end up here too; Unwrap returns the last error seen.
type RemoteError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RemoteError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("remote %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// SubprocessError is a non-zero exit of the transcoder.
type SubprocessError struct {
	Stage    string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *SubprocessError) Error() string {
	msg := fmt.Sprintf("ffmpeg %s exited with code %d", e.Stage, e.ExitCode)
	if tail := lastLine(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *SubprocessError) Unwrap() error { return e.Err }

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
