package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"obskit/internal/domain"
	"obskit/internal/infra/envutil"
)

// Runner executes a command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs tools as child processes, resolving them against the tool
// environment from envutil.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	env := envutil.ToolEnv(os.Environ())
	path, err := envutil.LookPath(name, env)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = env
	cmd.WaitDelay = time.Second
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err = cmd.Run()
	return out.Bytes(), err
}

// ToolVersion is the parsed output of a tool's version command.
type ToolVersion struct {
	Name    string
	Command string
	Version string
	Output  string
}

var versionPattern = regexp.MustCompile(`v?\d+\.\d+(?:\.\d+)?(?:[-+][0-9A-Za-z.-]+)?`)

// ToolProbe checks that an external tool is installed by running its version
// command under a mandatory timeout.
type ToolProbe struct {
	Timeout time.Duration
	Runner  Runner
}

func (p *ToolProbe) Probe(ctx context.Context, spec domain.ToolSpec) (ToolVersion, error) {
	if spec.Command == "" {
		return ToolVersion{}, fmt.Errorf("tool %q has no command", spec.Name)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = domain.DefaultToolProbeTimeout
	}
	runner := p.Runner
	if runner == nil {
		runner = ExecRunner{}
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := runner.Run(probeCtx, spec.Command, spec.Args...)
	if probeCtx.Err() != nil && errors.Is(probeCtx.Err(), context.DeadlineExceeded) {
		return ToolVersion{}, fmt.Errorf("%s: version check timed out after %s: %w", spec.Name, timeout, context.DeadlineExceeded)
	}
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return ToolVersion{}, fmt.Errorf("%s: command %q not found: %w", spec.Name, spec.Command, err)
		}
		return ToolVersion{}, fmt.Errorf("%s: version check failed: %w", spec.Name, err)
	}

	text := strings.TrimSpace(string(output))
	result := ToolVersion{
		Name:    spec.Name,
		Command: strings.TrimSpace(spec.Command + " " + strings.Join(spec.Args, " ")),
		Output:  text,
		Version: firstLine(text),
	}
	if match := versionPattern.FindString(text); match != "" {
		result.Version = strings.TrimPrefix(match, "v")
	}
	return result, nil
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return strings.TrimSpace(text[:idx])
	}
	return text
}
