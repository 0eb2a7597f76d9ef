package logging

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obskit/internal/domain"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		message string
		stack   string
		want    domain.ErrorCategory
	}{
		{name: "refused", message: "ECONNREFUSED 127.0.0.1:8006", want: domain.CategoryConnection},
		{name: "dial", message: "dial tcp 10.0.0.5:22: connect: connection refused", want: domain.CategoryConnection},
		{name: "validation", message: "validation failed: name is required", want: domain.CategoryValidation},
		{name: "terraform", message: "terraform apply exited with code 1", want: domain.CategoryTerraform},
		{name: "ansible", message: "ansible-playbook site.yml returned 2", want: domain.CategoryAnsible},
		{name: "remote api", message: "proxmox api error: 403 forbidden", want: domain.CategoryRemoteAPI},
		{name: "workspace", message: "workspace not initialized", want: domain.CategoryWorkspace},
		{name: "user", message: "operation cancelled by user", want: domain.CategoryUser},
		{name: "stack only", message: "exit status 2", stack: "at runPlaybook (ansible.go:10)", want: domain.CategoryAnsible},
		{name: "unmatched", message: "unexpected nil pointer", want: domain.CategorySystem},
		{name: "empty", message: "", want: domain.CategorySystem},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.message, tc.stack))
		})
	}
}

func TestClassifyFirstRuleWins(t *testing.T) {
	assert.Equal(t, domain.CategoryConnection, Classify("terraform provider timeout", ""))
}

func TestDescribeError(t *testing.T) {
	require.Nil(t, DescribeError(nil, nil))

	err := fmt.Errorf("sync hosts: %w", errors.New("connection reset by peer"))
	info := DescribeError(err, nil)
	require.NotNil(t, info)
	assert.Equal(t, "sync hosts: connection reset by peer", info.Message)
	assert.Equal(t, "errors.errorString", info.Type)
	assert.Equal(t, domain.CategoryConnection, info.Category)
	assert.Equal(t, DefaultRecoveryActions(domain.CategoryConnection), info.RecoveryActions)
	assert.NotEmpty(t, info.Stack)
	assert.Empty(t, info.Code)
}

func TestDescribeErrorKeepsCallerActionsAndCode(t *testing.T) {
	err := domain.E(domain.CodeNotFound, "snapshot.load", "snapshot abc missing", domain.ErrSnapshotNotFound)
	info := DescribeError(err, []string{"list snapshots"})
	require.NotNil(t, info)
	assert.Equal(t, string(domain.CodeNotFound), info.Code)
	assert.Equal(t, []string{"list snapshots"}, info.RecoveryActions)
}

func TestDefaultRecoveryActionsReturnsCopy(t *testing.T) {
	actions := DefaultRecoveryActions(domain.CategorySystem)
	require.NotEmpty(t, actions)
	actions[0] = "mutated"
	assert.NotEqual(t, "mutated", DefaultRecoveryActions(domain.CategorySystem)[0])
}
