// Package hooks runs user commands when a prompt completes and coordinates
// process shutdown.
//
// A hook command is split into arguments with shell quoting rules and run
// directly, without a shell. Placeholders such as ${PROMPT_ID} are replaced in
// each argument after splitting, so values containing spaces stay a single
// argument.
package hooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/inercia/comfyone/internal/config"
	"github.com/inercia/comfyone/internal/logging"
)

// DefaultTimeout bounds a hook without a configured timeout.
const DefaultTimeout = time.Minute

// Result describes how a prompt ended. It fills the hook's variables.
type Result struct {
	PromptID   string
	WorkflowID string
	// Status is "finished" or "error".
	Status  string
	Message string
	// Outputs are the downloaded files, or the output URLs when nothing was downloaded.
	Outputs []string
}

// Vars returns the substitution variables for r.
func (r Result) Vars() map[string]string {
	return map[string]string{
		"PROMPT_ID":   r.PromptID,
		"WORKFLOW_ID": r.WorkflowID,
		"STATUS":      r.Status,
		"MESSAGE":     r.Message,
		"OUTPUTS":     strings.Join(r.Outputs, " "),
	}
}

// ErrEmptyCommand is returned for a hook without a command.
var ErrEmptyCommand = errors.New("hook command is empty")

// Expand splits command and substitutes ${NAME} for each variable in vars.
// Other $ references are left for the command to interpret.
func Expand(command string, vars map[string]string) ([]string, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse hook command: %w", err)
	}
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "${"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)
	for i, a := range args {
		args[i] = r.Replace(a)
	}
	return args, nil
}

// Runner executes completion hooks.
type Runner struct {
	// Stdout and Stderr receive the command's output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

// Run executes hook for r and waits for it. The variables are also exported
// as COMFYONE_<NAME> environment variables. An empty command is a no-op.
func (hr *Runner) Run(ctx context.Context, hook config.Hook, r Result) error {
	if strings.TrimSpace(hook.Command) == "" {
		return nil
	}

	logger := logging.Hook()
	name := hook.Name
	if name == "" {
		name = r.Status
	}

	vars := r.Vars()
	args, err := Expand(hook.Command, vars)
	if err != nil {
		return err
	}

	timeout := time.Duration(hook.Timeout)
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Env = os.Environ()
	for k, v := range vars {
		cmd.Env = append(cmd.Env, "COMFYONE_"+k+"="+v)
	}
	var stderr bytes.Buffer
	cmd.Stdout = hr.Stdout
	cmd.Stderr = &stderr
	if hr.Stderr != nil {
		cmd.Stderr = io.MultiWriter(hr.Stderr, &stderr)
	}

	logger.Info("Running hook", "name", name, "command", args[0], "prompt_id", r.PromptID)
	start := time.Now()
	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		logger.Error("Hook failed",
			"name", name,
			"exit_code", exitCode,
			"stderr", strings.TrimSpace(stderr.String()),
			"error", err,
		)
		return fmt.Errorf("hook %s failed (exit code %d): %w", name, exitCode, err)
	}

	logger.Info("Hook completed", "name", name, "duration", time.Since(start))
	return nil
}

// RunFor picks OnFinished or OnError from hooks according to r.Status.
func (hr *Runner) RunFor(ctx context.Context, hooks config.Hooks, r Result) error {
	if r.Status == "error" {
		return hr.Run(ctx, hooks.OnError, r)
	}
	return hr.Run(ctx, hooks.OnFinished, r)
}
