package diagnostics

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestRedactMap(t *testing.T) {
	input := map[string]string{
		"token": "secret-value",
		"name":  "alpha",
	}
	out := RedactMap(input)
	if out["token"] != RedactedValue {
		t.Fatalf("expected redaction, got %q", out["token"])
	}
	if out["name"] != "alpha" {
		t.Fatalf("expected name preserved, got %q", out["name"])
	}
	assert.Nil(t, RedactMap(nil))
}

func TestRedactConfig(t *testing.T) {
	input := map[string]any{
		"name": "lab",
		"proxmox": map[string]any{
			"host":        "pve.local",
			"tokenSecret": "tok-123",
			"password":    "hunter2",
		},
		"providers": []any{
			map[string]any{"apiKey": "key-1", "region": "eu"},
		},
		"port": 8006,
	}

	got := RedactConfig(input)

	want := map[string]any{
		"name": "lab",
		"proxmox": map[string]any{
			"host":        "pve.local",
			"tokenSecret": RedactedValue,
			"password":    RedactedValue,
		},
		"providers": []any{
			map[string]any{"apiKey": RedactedValue, "region": "eu"},
		},
		"port": 8006,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("redacted config mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "hunter2", input["proxmox"].(map[string]any)["password"])
}

func TestSecretValuesAndScrub(t *testing.T) {
	input := map[string]any{
		"password": "hunter2",
		"nested": map[string]any{
			"tokenSecret": "hunter2-extended",
			"apiKey":      42,
		},
		"credentials": map[string]any{"secret": map[string]any{"value": "deep"}},
		"user":        "admin",
	}

	secrets := SecretValues(input)
	assert.Equal(t, []string{"hunter2-extended", "hunter2", "deep", "42"}, secrets)

	text := "login admin:hunter2 with hunter2-extended and deep on port 42"
	assert.Equal(t, "login admin:[REDACTED] with [REDACTED] and [REDACTED] on port [REDACTED]", ScrubText(text, secrets))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", TruncateString("abc", 10))
	assert.Equal(t, "ab...", TruncateString("abcdefgh", 5))
	assert.Equal(t, "ab", TruncateString("abcdefgh", 2))
}
