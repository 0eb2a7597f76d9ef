package diagnostics

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"obskit/internal/domain"
)

// FileStore persists snapshots as snapshot-{id}.json files under Dir.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) Path(id string) string {
	return filepath.Join(s.Dir, "snapshot-"+id+".json")
}

// Save writes the snapshot atomically and returns its path. The directory is
// created on first use.
func (s *FileStore) Save(snapshot domain.DiagnosticSnapshot) (string, error) {
	if snapshot.ID == "" {
		return "", errors.New("snapshot id is required")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	path := s.Path(snapshot.ID)
	tmp, err := os.CreateTemp(s.Dir, ".snapshot-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create snapshot file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rename snapshot: %w", err)
	}
	return path, nil
}

func (s *FileStore) Load(id string) (domain.DiagnosticSnapshot, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return domain.DiagnosticSnapshot{}, fmt.Errorf("%w: invalid id %q", domain.ErrSnapshotNotFound, id)
	}
	data, err := os.ReadFile(s.Path(id))
	if errors.Is(err, os.ErrNotExist) {
		return domain.DiagnosticSnapshot{}, fmt.Errorf("%w: %s", domain.ErrSnapshotNotFound, id)
	}
	if err != nil {
		return domain.DiagnosticSnapshot{}, domain.Wrap(domain.CodeInternal, "snapshot.load", fmt.Errorf("read snapshot: %w", err))
	}
	var snapshot domain.DiagnosticSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return domain.DiagnosticSnapshot{}, domain.Wrap(domain.CodeInternal, "snapshot.load", fmt.Errorf("decode snapshot %s: %w", id, err))
	}
	return snapshot, nil
}
