package detector

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"nutriflow/internal/config"
	"nutriflow/internal/imaging"
	"nutriflow/internal/logging"
)

// CommandDetector keeps one detector process running and exchanges one JSON
// line per request over its stdin and stdout. Requests are serialized.
type CommandDetector struct {
	path    string
	args    []string
	timeout time.Duration
	opts    imaging.Options
	logger  *slog.Logger

	mu   sync.Mutex
	proc *process
}

type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	exited chan struct{}
}

type commandRequest struct {
	Image string `json:"image"`
}

type commandResponse struct {
	Labels []string `json:"labels"`
	Error  string   `json:"error"`
}

// NewCommand returns a detector for cfg.Command. The process starts on the
// first Detect call.
func NewCommand(cfg config.Detector, logger *slog.Logger) *CommandDetector {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &CommandDetector{
		path:    strings.TrimSpace(cfg.Command),
		args:    append([]string(nil), cfg.Args...),
		timeout: timeoutFor(cfg),
		opts:    imaging.Options{MaxWidth: cfg.MaxWidth, MaxHeight: cfg.MaxHeight},
		logger:  logging.NewComponentLogger(logger, "detector"),
	}
}

// Detect sends image to the process and returns its labels. A timed out or
// broken exchange kills the process; the next call starts a fresh one.
func (d *CommandDetector) Detect(ctx context.Context, image []byte) ([]string, error) {
	payload, err := prepare(image, d.opts)
	if err != nil {
		return nil, err
	}
	line, err := json.Marshal(commandRequest{Image: base64.StdEncoding.EncodeToString(payload)})
	if err != nil {
		return nil, failed("encode request", err)
	}
	line = append(line, '\n')

	d.mu.Lock()
	defer d.mu.Unlock()

	proc, err := d.ensureProcess()
	if err != nil {
		return nil, failed("start process", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type exchange struct {
		resp commandResponse
		err  error
	}
	done := make(chan exchange, 1)
	go func() {
		if _, err := proc.stdin.Write(line); err != nil {
			done <- exchange{err: fmt.Errorf("write request: %w", err)}
			return
		}
		raw, err := proc.stdout.ReadBytes('\n')
		if err != nil {
			done <- exchange{err: fmt.Errorf("read response: %w", err)}
			return
		}
		var resp commandResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			done <- exchange{err: fmt.Errorf("decode response: %w", err)}
			return
		}
		done <- exchange{resp: resp}
	}()

	select {
	case <-ctx.Done():
		d.stopLocked()
		return nil, failed("detect", fmt.Errorf("no response within %s: %w", d.timeout, ctx.Err()))
	case result := <-done:
		if result.err != nil {
			d.stopLocked()
			return nil, failed("detect", result.err)
		}
		if msg := strings.TrimSpace(result.resp.Error); msg != "" {
			return nil, failed("detect", errors.New(msg))
		}
		return normalizeLabels(result.resp.Labels), nil
	}
}

func (d *CommandDetector) ensureProcess() (*process, error) {
	if d.proc != nil {
		select {
		case <-d.proc.exited:
			d.proc = nil
		default:
			return d.proc, nil
		}
	}
	if d.path == "" {
		return nil, errors.New("detector.command is not set")
	}
	cmd := exec.Command(d.path, d.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", d.path, err)
	}

	proc := &process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReaderSize(stdout, 64<<10),
		exited: make(chan struct{}),
	}
	go d.logStderr(stderr)
	go func() {
		err := cmd.Wait()
		close(proc.exited)
		if err != nil {
			d.logger.Debug("detector process exited", logging.Error(err))
		}
	}()
	d.logger.Info("detector process started",
		logging.String("command", d.path),
		logging.Int("pid", cmd.Process.Pid),
	)
	d.proc = proc
	return proc, nil
}

func (d *CommandDetector) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			d.logger.Debug("detector stderr", logging.String("line", line))
		}
	}
}

func (d *CommandDetector) stopLocked() {
	if d.proc == nil {
		return
	}
	proc := d.proc
	d.proc = nil
	_ = proc.stdin.Close()
	select {
	case <-proc.exited:
		return
	case <-time.After(2 * time.Second):
	}
	if proc.cmd.Process != nil {
		_ = proc.cmd.Process.Kill()
	}
	<-proc.exited
}

// Close stops the process, if running.
func (d *CommandDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	return nil
}
