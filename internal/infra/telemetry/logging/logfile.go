package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"obskit/internal/domain"
	"obskit/internal/infra/telemetry/buffer"
)

const maxLogLineBytes = 1024 * 1024

// ReadLogFile parses a JSON-lines log file written by the file sink and
// returns up to limit of the newest entries matching level and operation, in
// file order. Lines that do not parse are skipped.
func ReadLogFile(path string, limit int, level domain.LogLevel, operation string) ([]domain.LogEntry, error) {
	if limit <= 0 {
		limit = domain.DefaultRecentLogsLimit
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	ring := buffer.NewRing[domain.LogEntry](limit)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLineBytes)
	for scanner.Scan() {
		var entry domain.LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if level != "" && entry.Level != level {
			continue
		}
		if operation != "" && entry.Operation != operation {
			continue
		}
		ring.Add(entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}
	return ring.Snapshot(), nil
}
