package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/d2c-launcher/coordinator/internal/errors"
	"github.com/d2c-launcher/coordinator/internal/logging"
)

const (
	// DefaultHelperTimeout bounds one helper run. The provider can take
	// ~8s to issue a ticket.
	DefaultHelperTimeout = 12 * time.Second

	// maxStdout bounds the captured snapshot; a 184x184 RGBA avatar is
	// ~180KB once base64 encoded.
	maxStdout = 4 << 20
	maxStderr = 64 << 10
)

// DefaultHelperName returns the platform helper executable name.
func DefaultHelperName() string {
	if runtime.GOOS == "windows" {
		return "d2c-steam-bridge.exe"
	}
	return "d2c-steam-bridge"
}

// HelperOption configures an ExecHelper.
type HelperOption func(*ExecHelper)

// WithHelperTimeout sets the hard timeout for one run.
func WithHelperTimeout(d time.Duration) HelperOption {
	return func(h *ExecHelper) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithHelperLogger sets the logger for the helper.
func WithHelperLogger(logger *logging.Logger) HelperOption {
	return func(h *ExecHelper) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// ExecHelper runs the helper executable once per query. The child runs in
// its own process group with the executable's directory as working
// directory, and the whole group is killed when the timeout expires.
type ExecHelper struct {
	path    string
	args    []string
	env     []string
	timeout time.Duration
	logger  *logging.Logger
}

// NewExecHelper creates a helper runner for the executable at path.
func NewExecHelper(path string, opts ...HelperOption) *ExecHelper {
	h := &ExecHelper{
		path:    path,
		timeout: DefaultHelperTimeout,
		logger:  logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Path returns the helper executable path.
func (h *ExecHelper) Path() string { return h.path }

// Query runs the helper and parses its snapshot. The exit code is ignored;
// only stdout and a timely exit matter.
func (h *ExecHelper) Query(ctx context.Context) (*Snapshot, error) {
	if _, err := os.Stat(h.path); err != nil {
		return nil, errors.NewHelperError("helper not found", errors.ErrHelperMissing).WithPath(h.path)
	}

	qctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	cmd := exec.Command(h.path, h.args...)
	cmd.Dir = filepath.Dir(h.path)
	if h.env != nil {
		cmd.Env = append(os.Environ(), h.env...)
	}
	configureProcess(cmd)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.NewHelperError("stdout pipe", err).WithPath(h.path)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.NewHelperError("stderr pipe", err).WithPath(h.path)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, errors.NewHelperError("start helper", err).WithPath(h.path)
	}

	stopKill := context.AfterFunc(qctx, func() {
		killTree(cmd)
	})
	defer stopKill()

	var stdout, stderr []byte
	var g errgroup.Group
	g.Go(func() error {
		var err error
		stdout, err = drain(stdoutPipe, maxStdout)
		return err
	})
	g.Go(func() error {
		var err error
		stderr, err = drain(stderrPipe, maxStderr)
		return err
	})
	readErr := g.Wait()
	waitErr := cmd.Wait()

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	h.logger.Debug("helper exited",
		"exit_code", exitCode,
		"duration", time.Since(start),
		"stdout_bytes", len(stdout),
		"stderr_bytes", len(stderr),
	)

	if ctx.Err() != nil {
		return nil, errors.Wrap(errors.ErrCanceled, "helper query")
	}
	if errors.Is(qctx.Err(), context.DeadlineExceeded) {
		return nil, errors.NewHelperError("helper timed out", errors.NewTimeoutError("helper query", h.timeout).WithCause(errors.ErrHelperTimeout)).
			WithPath(h.path).
			WithExitCode(exitCode)
	}
	if readErr != nil {
		return nil, errors.NewHelperError("read helper output", readErr).WithPath(h.path)
	}

	snap, err := ParseSnapshot(stdout)
	if err != nil {
		herr := errors.NewHelperError("parse helper output", err).
			WithPath(h.path).
			WithExitCode(exitCode).
			WithStderr(strings.TrimSpace(string(stderr)))
		if waitErr != nil {
			h.logger.Debug("helper wait error", "error", waitErr)
		}
		return nil, herr
	}
	return snap, nil
}

func drain(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return data, err
	}
	// Keep the child from blocking on a full pipe past the limit.
	_, err = io.Copy(io.Discard, r)
	return data, err
}

// ParseSnapshot decodes helper stdout. The whole output is tried first,
// then its last non-empty line, so stray diagnostics before the record
// are tolerated.
func ParseSnapshot(stdout []byte) (*Snapshot, error) {
	out := bytes.TrimSpace(stdout)
	if len(out) == 0 {
		return nil, errors.Wrap(errors.ErrMalformedSnapshot, "empty output")
	}

	var snap Snapshot
	if err := json.Unmarshal(out, &snap); err == nil {
		return &snap, nil
	}

	lines := bytes.Split(out, []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 {
			continue
		}
		if err := json.Unmarshal(line, &snap); err != nil {
			return nil, errors.Wrapf(errors.ErrMalformedSnapshot, "decode: %v", err)
		}
		return &snap, nil
	}
	return nil, errors.ErrMalformedSnapshot
}
