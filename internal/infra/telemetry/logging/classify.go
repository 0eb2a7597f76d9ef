package logging

import (
	"errors"
	"fmt"
	"strings"

	"obskit/internal/domain"
)

type classificationRule struct {
	category domain.ErrorCategory
	keywords []string
}

// classificationRules is evaluated in order; the first rule with a keyword
// contained in the lowercased message or stack wins.
var classificationRules = []classificationRule{
	{
		category: domain.CategoryConnection,
		keywords: []string{"econnrefused", "enotfound", "etimedout", "econnreset", "connection refused", "connection reset", "no such host", "dial tcp", "network is unreachable", "timeout", "timed out"},
	},
	{
		category: domain.CategoryValidation,
		keywords: []string{"validation", "invalid", "required", "must be", "malformed", "schema"},
	},
	{
		category: domain.CategoryTerraform,
		keywords: []string{"terraform", "tfstate", ".tf:", "hcl"},
	},
	{
		category: domain.CategoryAnsible,
		keywords: []string{"ansible", "playbook", "inventory"},
	},
	{
		category: domain.CategoryRemoteAPI,
		keywords: []string{"api error", "status code", "unauthorized", "forbidden", "401", "403", "500", "502", "503", "ticket", "api token"},
	},
	{
		category: domain.CategoryWorkspace,
		keywords: []string{"workspace", "not initialized", "config file", ".env", "no such file"},
	},
	{
		category: domain.CategoryUser,
		keywords: []string{"cancelled by user", "canceled by user", "aborted by user", "interrupted", "user input", "permission denied"},
	},
}

// Classify maps an error message and stack to a category. Unmatched input is
// classified as system.
func Classify(message, stack string) domain.ErrorCategory {
	haystack := strings.ToLower(message + "\n" + stack)
	for _, rule := range classificationRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(haystack, keyword) {
				return rule.category
			}
		}
	}
	return domain.CategorySystem
}

var defaultRecoveryActions = map[domain.ErrorCategory][]string{
	domain.CategoryConnection: {
		"Check network connectivity to the target host",
		"Verify the server address and port",
		"Retry the operation once the host is reachable",
	},
	domain.CategoryValidation: {
		"Review the input values reported in the error",
		"Check the configuration against the expected schema",
	},
	domain.CategoryTerraform: {
		"Run terraform validate in the workspace",
		"Inspect the terraform state for drift",
		"Re-run terraform plan to review pending changes",
	},
	domain.CategoryAnsible: {
		"Check the playbook syntax with ansible-playbook --syntax-check",
		"Verify the inventory hosts are reachable",
	},
	domain.CategoryRemoteAPI: {
		"Verify the API credentials and token permissions",
		"Check the remote API status",
	},
	domain.CategoryWorkspace: {
		"Verify the workspace is initialized",
		"Check that the workspace configuration file exists",
	},
	domain.CategoryUser: {
		"Re-run the command when ready",
	},
	domain.CategorySystem: {
		"Generate a diagnostic snapshot and review recent logs",
	},
}

// DefaultRecoveryActions returns the built-in suggestions for a category.
func DefaultRecoveryActions(category domain.ErrorCategory) []string {
	return append([]string(nil), defaultRecoveryActions[category]...)
}

type errorCoder interface {
	ErrorCode() string
}

// DescribeError converts err into the serialisable ErrorInfo, classifying it
// and falling back to the category's default recovery actions.
func DescribeError(err error, recoveryActions []string) *domain.ErrorInfo {
	if err == nil {
		return nil
	}
	message := err.Error()
	stack := fmt.Sprintf("%+v", err)
	category := Classify(message, stack)
	if len(recoveryActions) == 0 {
		recoveryActions = DefaultRecoveryActions(category)
	}
	info := &domain.ErrorInfo{
		Type:            errorTypeName(err),
		Message:         message,
		Stack:           stack,
		RecoveryActions: append([]string(nil), recoveryActions...),
		Category:        category,
	}
	if code, ok := domain.CodeFrom(err); ok {
		info.Code = string(code)
	} else {
		var coder errorCoder
		if errors.As(err, &coder) {
			info.Code = coder.ErrorCode()
		}
	}
	return info
}

// errorTypeName names the innermost wrapped error type.
func errorTypeName(err error) string {
	root := err
	for {
		next := errors.Unwrap(root)
		if next == nil {
			break
		}
		root = next
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", root), "*")
}
