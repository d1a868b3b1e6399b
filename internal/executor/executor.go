// Package executor runs whitelisted shell commands with a bounded timeout.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"hostwatch/internal/errpolicy"
	"hostwatch/internal/logger"
	"hostwatch/pkg/models"
)

// DefaultTimeout bounds a single command execution.
const DefaultTimeout = 30 * time.Second

// Executor rejects any command whose first token is not whitelisted, so the
// collection pipeline can only ever run the probes it was configured with.
type Executor struct {
	whitelist map[string]struct{}
	timeout   time.Duration
}

// New returns an executor for the given base commands. The whitelist must be
// non-empty and the timeout positive.
func New(whitelist []string, timeout time.Duration) (*Executor, error) {
	if len(whitelist) == 0 {
		return nil, fmt.Errorf("%w: whitelist cannot be empty", errpolicy.ErrInvalidArgument)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be positive", errpolicy.ErrInvalidArgument)
	}
	allowed := make(map[string]struct{}, len(whitelist))
	for _, cmd := range whitelist {
		allowed[cmd] = struct{}{}
	}
	return &Executor{whitelist: allowed, timeout: timeout}, nil
}

// IsWhitelisted reports whether the command's first token is allowed.
func (e *Executor) IsWhitelisted(command string) bool {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}
	_, ok := e.whitelist[fields[0]]
	if !ok {
		logger.Warnf("executor: command not whitelisted: %s", fields[0])
	}
	return ok
}

// Execute runs a whitelisted command through the platform shell and captures
// its output. Rejection, timeout, and launch failures all come back as a
// failed result with the reason in ErrorMessage; Execute itself never errors.
func (e *Executor) Execute(ctx context.Context, command string) models.ExecutionResult {
	if !e.IsWhitelisted(command) {
		base := "empty"
		if fields := strings.Fields(command); len(fields) > 0 {
			base = fields[0]
		}
		return models.ExecutionResult{
			Success:      false,
			ReturnCode:   -1,
			ErrorMessage: fmt.Sprintf("command not whitelisted: %s", base),
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(runCtx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(runCtx, "sh", "-c", command)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debugf("executor: running: %s", command)
	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		logger.Errorf("executor: command timeout after %v: %s", e.timeout, command)
		return models.ExecutionResult{
			Success:      false,
			ReturnCode:   -1,
			DurationMs:   elapsed.Milliseconds(),
			ErrorMessage: fmt.Sprintf("command timeout after %v", e.timeout),
		}
	}

	result := models.ExecutionResult{
		Success:    err == nil,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: elapsed.Milliseconds(),
	}
	if err == nil {
		return result
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ReturnCode = exitErr.ExitCode()
		result.ErrorMessage = fmt.Sprintf("command failed with return code %d", exitErr.ExitCode())
		logger.Warnf("executor: %s: %s", result.ErrorMessage, command)
	} else {
		result.ReturnCode = -1
		result.ErrorMessage = fmt.Sprintf("command execution failed: %v", err)
		logger.Errorf("executor: %s: %s", result.ErrorMessage, command)
	}
	return result
}
