package probe

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obskit/internal/domain"
)

type runnerFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func (f runnerFunc) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return f(ctx, name, args...)
}

func TestToolProbe_ParsesVersion(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		version string
	}{
		{name: "terraform", output: "Terraform v1.7.5\non linux_amd64\n", version: "1.7.5"},
		{name: "ansible", output: "ansible [core 2.16.3]\n  config file = None\n", version: "2.16.3"},
		{name: "prerelease", output: "tool v0.9.0-rc.1", version: "0.9.0-rc.1"},
		{name: "no version", output: "installed\n", version: "installed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			probe := &ToolProbe{Runner: runnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, error) {
				return []byte(tc.output), nil
			})}

			got, err := probe.Probe(context.Background(), domain.ToolSpec{Name: tc.name, Command: tc.name, Args: []string{"--version"}})
			require.NoError(t, err)
			assert.Equal(t, tc.version, got.Version)
			assert.Equal(t, tc.name+" --version", got.Command)
		})
	}
}

func TestToolProbe_PassesArgs(t *testing.T) {
	var gotName string
	var gotArgs []string
	probe := &ToolProbe{Runner: runnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return []byte("Terraform v1.0.0"), nil
	})}

	_, err := probe.Probe(context.Background(), domain.DefaultTools()[0])
	require.NoError(t, err)
	assert.Equal(t, "terraform", gotName)
	assert.Equal(t, []string{"version"}, gotArgs)
}

func TestToolProbe_Timeout(t *testing.T) {
	probe := &ToolProbe{
		Timeout: 20 * time.Millisecond,
		Runner: runnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	}

	start := time.Now()
	_, err := probe.Probe(context.Background(), domain.ToolSpec{Name: "slow", Command: "slow"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second)
}

func TestToolProbe_Failure(t *testing.T) {
	probe := &ToolProbe{Runner: runnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	})}

	_, err := probe.Probe(context.Background(), domain.ToolSpec{Name: "broken", Command: "broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: version check failed")
}

func TestToolProbe_MissingCommand(t *testing.T) {
	probe := &ToolProbe{Timeout: time.Second}

	_, err := probe.Probe(context.Background(), domain.ToolSpec{Name: "missing", Command: "obskit-definitely-missing-tool"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, exec.ErrNotFound))

	_, err = probe.Probe(context.Background(), domain.ToolSpec{Name: "empty"})
	require.Error(t, err)
}

func TestToolProbe_ExecRunnerMissingTool(t *testing.T) {
	probe := &ToolProbe{Timeout: time.Second}
	_, err := probe.Probe(context.Background(), domain.ToolSpec{Name: "ghost", Command: "obskit-no-such-tool"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, exec.ErrNotFound))
	assert.Contains(t, err.Error(), `command "obskit-no-such-tool" not found`)
}
