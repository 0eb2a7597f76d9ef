package envutil

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	skipPathPatchEnv = "OBSKIT_SKIP_PATH_PATCH"
	termEnv          = "TERM"
	shellEnv         = "SHELL"
	pathEnv          = "PATH"
)

type pathCacheEntry struct {
	path string
	err  error
}

var loginPathCache sync.Map

// ToolEnv returns the environment used to run external tools. On macOS a
// process started outside a terminal inherits a minimal PATH, so the login
// shell PATH is merged in front of it.
func ToolEnv(env []string) []string {
	if runtime.GOOS != "darwin" {
		return env
	}
	if strings.TrimSpace(Value(env, skipPathPatchEnv)) != "" {
		return env
	}
	if strings.TrimSpace(Value(env, termEnv)) != "" {
		return env
	}
	shellPath := strings.TrimSpace(Value(env, shellEnv))
	if shellPath == "" {
		shellPath = "/bin/zsh"
	}
	loginPath, err := loginShellPATH(shellPath)
	if err != nil || strings.TrimSpace(loginPath) == "" {
		return env
	}
	current := Value(env, pathEnv)
	merged := MergePATH(loginPath, current)
	if merged == "" || merged == current {
		return env
	}
	return Set(env, pathEnv, merged)
}

// LookPath resolves name against the PATH carried by env rather than the
// PATH of the current process. Names containing a separator are returned
// unchanged when they point at an executable.
func LookPath(name string, env []string) (string, error) {
	if name == "" {
		return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
	}
	if strings.ContainsRune(name, filepath.Separator) {
		if err := checkExecutable(name); err != nil {
			return "", &exec.Error{Name: name, Err: err}
		}
		return name, nil
	}
	for _, dir := range filepath.SplitList(Value(env, pathEnv)) {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, name)
		if checkExecutable(candidate) == nil {
			return candidate, nil
		}
	}
	return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fs.ErrInvalid
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return fs.ErrPermission
	}
	return nil
}

// Value returns the last value assigned to key in env.
func Value(env []string, key string) string {
	if key == "" {
		return ""
	}
	prefix := key + "="
	var value string
	for _, entry := range env {
		if strings.HasPrefix(entry, prefix) {
			value = strings.TrimPrefix(entry, prefix)
		}
	}
	return value
}

// Set drops every assignment of key and appends key=value.
func Set(env []string, key, value string) []string {
	if key == "" {
		return env
	}
	prefix := key + "="
	out := make([]string, 0, len(env)+1)
	for _, entry := range env {
		if strings.HasPrefix(entry, prefix) {
			continue
		}
		out = append(out, entry)
	}
	return append(out, prefix+value)
}

// MergePATH joins two PATH lists, keeping the first occurrence of each entry.
func MergePATH(primary, fallback string) string {
	separator := string(os.PathListSeparator)
	seen := map[string]struct{}{}
	out := make([]string, 0, 8)

	add := func(list string) {
		for _, entry := range strings.Split(list, separator) {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			if _, exists := seen[entry]; exists {
				continue
			}
			seen[entry] = struct{}{}
			out = append(out, entry)
		}
	}
	add(primary)
	add(fallback)

	return strings.Join(out, separator)
}

func loginShellPATH(shellPath string) (string, error) {
	if cached, ok := loginPathCache.Load(shellPath); ok {
		entry := cached.(pathCacheEntry)
		return entry.path, entry.err
	}
	path, err := resolveLoginShellPATH(shellPath)
	loginPathCache.Store(shellPath, pathCacheEntry{path: path, err: err})
	return path, err
}

func resolveLoginShellPATH(shellPath string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, shellPath, "-lc", "echo $PATH")
	cmd.Env = append(os.Environ(), "LANG=C", "LC_ALL=C")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	path := strings.TrimSpace(string(output))
	if path == "" {
		return "", errors.New("login shell reported an empty PATH")
	}
	return path, nil
}
