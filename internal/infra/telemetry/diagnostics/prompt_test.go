package diagnostics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"obskit/internal/domain"
)

func promptSnapshot() domain.DiagnosticSnapshot {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return domain.DiagnosticSnapshot{
		ID:        "snap-1",
		Timestamp: ts,
		Workspace: "lab",
		Operation: "deploy",
		Error: &domain.ErrorInfo{
			Type:            "errors.errorString",
			Message:         "terraform apply failed",
			Category:        domain.CategoryTerraform,
			RecoveryActions: []string{"Run terraform validate in the workspace"},
		},
		Logs: []domain.LogEntry{
			{Timestamp: ts, Operation: "plan", Level: domain.LogLevelInfo, Message: "Operation plan completed"},
			{Timestamp: ts.Add(time.Second), Operation: "apply", Level: domain.LogLevelInfo, Message: "Starting apply"},
			{Timestamp: ts.Add(2 * time.Second), Operation: "apply", Level: domain.LogLevelError, Message: "Operation apply failed"},
		},
		HealthStatus: []domain.HealthStatus{
			{Component: "memory", Status: domain.HealthHealthy, Message: "Heap usage 10.0 MB"},
			{Component: "tool_ansible", Status: domain.HealthError, Message: "ansible is not available"},
		},
		SystemInfo: domain.SystemInfo{RuntimeVersion: "go1.25", Platform: "linux/amd64", NumCPU: 4},
	}
}

func TestBuildAIPrompt(t *testing.T) {
	prompt := BuildAIPrompt(promptSnapshot(), "apply keeps failing")

	assert.Contains(t, prompt, "Problem Description:  apply keeps failing")
	assert.Contains(t, prompt, "Message:              terraform apply failed")
	assert.Contains(t, prompt, "- Run terraform validate in the workspace")
	assert.Contains(t, prompt, "plan: Operation plan completed")
	assert.Contains(t, prompt, "- tool_ansible [error]: ansible is not available")
	assert.NotContains(t, prompt, "- memory [healthy]")
	assert.Contains(t, prompt, "apply: Operation apply failed")
	assert.Contains(t, prompt, "Platform:             linux/amd64")
	assert.NotContains(t, prompt, "Workspace Configuration")
}

func TestBuildAIPromptWithoutFindings(t *testing.T) {
	snapshot := domain.DiagnosticSnapshot{ID: "empty"}

	prompt := BuildAIPrompt(snapshot, "")

	assert.Contains(t, prompt, "No error recorded.")
	assert.Contains(t, prompt, "No completed operation found in recent logs.")
	assert.Contains(t, prompt, "All health checks passed.")
	assert.Contains(t, prompt, "No operations in flight.")
	assert.Contains(t, prompt, "(none provided)")
}

func TestBuildAIPromptRedactsSecrets(t *testing.T) {
	snapshot := promptSnapshot()
	snapshot.WorkspaceInfo = &domain.WorkspaceInfo{
		Name: "lab",
		Config: map[string]any{
			"proxmox": map[string]any{"host": "pve.local", "password": "hunter2", "tokenSecret": "tok-xyz"},
			"apiKey":  "key-123",
		},
	}
	snapshot.Logs = append(snapshot.Logs, domain.LogEntry{
		Level:    domain.LogLevelError,
		Message:  "login failed with hunter2",
		Metadata: map[string]any{"password": "hunter2"},
	})

	prompt := BuildAIPrompt(snapshot, "password is hunter2")

	for _, secret := range []string{"hunter2", "tok-xyz", "key-123"} {
		assert.NotContains(t, prompt, secret)
	}
	assert.Contains(t, prompt, "pve.local")
}

func TestBuildAIPromptRedactionProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		suffix := rapid.StringMatching(`[a-z0-9]{4,16}`)
		password := "s3cr3t-p-" + suffix.Draw(rt, "password")
		token := "s3cr3t-t-" + suffix.Draw(rt, "token")
		apiKey := "s3cr3t-k-" + suffix.Draw(rt, "apiKey")
		key := rapid.SampledFrom([]string{"password", "tokenSecret", "apiKey"}).Draw(rt, "nestedKey")

		snapshot := promptSnapshot()
		snapshot.WorkspaceInfo = &domain.WorkspaceInfo{Config: map[string]any{
			"password":    password,
			"tokenSecret": token,
			"nested":      []any{map[string]any{key: apiKey}},
		}}
		snapshot.Error.Message = "failed using " + password
		description := "token " + token + " rejected"

		prompt := BuildAIPrompt(snapshot, description)
		for _, secret := range []string{password, token, apiKey} {
			if strings.Contains(prompt, secret) {
				rt.Fatalf("prompt leaked %q", secret)
			}
		}
	})
}
