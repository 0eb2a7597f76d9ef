package diagnostics

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"obskit/internal/domain"
)

var (
	snapshotsBucket = []byte("snapshots")
	snapshotIDIndex = []byte("snapshot_ids")
)

// History indexes generated snapshots in a bbolt database, ordered by time.
type History struct {
	db *bolt.DB
}

func OpenHistory(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(snapshotsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(snapshotIDIndex)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init history: %w", err)
	}
	return &History{db: db}, nil
}

func historyKey(record domain.SnapshotRecord) []byte {
	return []byte(record.Timestamp.UTC().Format("20060102T150405.000000000Z") + "/" + record.ID)
}

// Record adds or replaces the index entry for a snapshot.
func (h *History) Record(record domain.SnapshotRecord) error {
	if record.ID == "" {
		return errors.New("snapshot record id is required")
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode snapshot record: %w", err)
	}
	return h.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(snapshotsBucket)
		ids := tx.Bucket(snapshotIDIndex)
		if previous := ids.Get([]byte(record.ID)); previous != nil {
			if err := records.Delete(previous); err != nil {
				return err
			}
		}
		key := historyKey(record)
		if err := records.Put(key, payload); err != nil {
			return err
		}
		return ids.Put([]byte(record.ID), key)
	})
}

// List returns up to limit records, newest first. limit <= 0 returns all.
func (h *History) List(limit int) ([]domain.SnapshotRecord, error) {
	var out []domain.SnapshotRecord
	err := h.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(snapshotsBucket).Cursor()
		for key, value := cursor.Last(); key != nil; key, value = cursor.Prev() {
			var record domain.SnapshotRecord
			if err := json.Unmarshal(value, &record); err != nil {
				return fmt.Errorf("decode snapshot record %s: %w", key, err)
			}
			out = append(out, record)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (h *History) Get(id string) (domain.SnapshotRecord, error) {
	var record domain.SnapshotRecord
	err := h.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(snapshotIDIndex).Get([]byte(id))
		if key == nil {
			return fmt.Errorf("%w: %s", domain.ErrSnapshotNotFound, id)
		}
		value := tx.Bucket(snapshotsBucket).Get(key)
		if value == nil {
			return fmt.Errorf("%w: %s", domain.ErrSnapshotNotFound, id)
		}
		return json.Unmarshal(value, &record)
	})
	return record, err
}

func (h *History) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

// RecordFor summarises a snapshot into its index entry.
func RecordFor(snapshot domain.DiagnosticSnapshot, path string) domain.SnapshotRecord {
	record := domain.SnapshotRecord{
		ID:        snapshot.ID,
		Timestamp: snapshot.Timestamp,
		Workspace: snapshot.Workspace,
		Operation: snapshot.Operation,
		Path:      path,
	}
	if snapshot.Error != nil {
		record.ErrorMessage = snapshot.Error.Message
	}
	for _, status := range snapshot.HealthStatus {
		switch status.Status {
		case domain.HealthHealthy:
			record.Healthy++
		case domain.HealthWarning:
			record.Warnings++
		default:
			record.Errors++
		}
	}
	return record
}
