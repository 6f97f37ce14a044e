package definition

import (
	"context"
	"os"
	"os/exec"
)

// DefaultHelperInvoker runs the configured policy-hook script (split-brain,
// fencing) as a child process, passing parameters through the
// environment the way DRBD's own helper scripts expect. spec.md 1 keeps
// "the pluggable helper process invocation" external; this is the
// narrow stdlib adapter, justified because no example repo in the pack
// wraps os/exec with a third-party process-supervision library for a
// one-shot synchronous script call.
type DefaultHelperInvoker struct{}

func NewDefaultHelperInvoker() *DefaultHelperInvoker {
	return &DefaultHelperInvoker{}
}

func (DefaultHelperInvoker) Run(ctx context.Context, name string, env map[string]string) (int, error) {
	cmd := exec.CommandContext(ctx, name)
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}
