package snapshot

import (
	"cmp"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"NetSentinel/internal/model"
)

const (
	connectionsFile = "connections.dat"
	summaryFile     = "summary.json"
)

// SummaryData holds the metadata for a baseline snapshot.
type SummaryData struct {
	Host        string `json:"host"`
	Connections int    `json:"connections"`
	Remote      int    `json:"remote"`
	Timestamp   string `json:"timestamp"`
}

// Writer handles writing baseline snapshots to disk.
type Writer struct {
	host string
}

// NewWriter creates a new snapshot writer.
func NewWriter(host string) *Writer {
	return &Writer{host: host}
}

// Write stores the baseline under rootPath/timestamp and returns that directory.
// Connections are gob-encoded in a stable order next to a JSON summary.
func (w *Writer) Write(baseline model.ConnectionSet, rootPath string, at time.Time) (string, error) {
	dir := filepath.Join(rootPath, at.UTC().Format("20060102T150405Z"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	keys := sortedKeys(baseline)
	remote := 0
	for _, k := range keys {
		if k.RemoteIP != "" {
			remote++
		}
	}

	if err := writeGob(filepath.Join(dir, connectionsFile), keys); err != nil {
		return "", err
	}

	summary := SummaryData{
		Host:        w.host,
		Connections: len(keys),
		Remote:      remote,
		Timestamp:   at.UTC().Format(time.RFC3339),
	}
	f, err := os.Create(filepath.Join(dir, summaryFile))
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return "", fmt.Errorf("failed to encode summary to json: %w", err)
	}
	return dir, nil
}

// Read loads the baseline stored in a snapshot directory.
func Read(dir string) (model.ConnectionSet, error) {
	f, err := os.Open(filepath.Join(dir, connectionsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	var keys []model.ConnectionKey
	if err := gob.NewDecoder(f).Decode(&keys); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return model.NewConnectionSet(keys...), nil
}

func writeGob(path string, keys []model.ConnectionKey) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file '%s': %w", path, err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(keys); err != nil {
		return fmt.Errorf("failed to encode connections to gob for file '%s': %w", path, err)
	}
	return nil
}

func sortedKeys(set model.ConnectionSet) []model.ConnectionKey {
	keys := make([]model.ConnectionKey, 0, set.Len())
	for k := range set {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b model.ConnectionKey) int {
		return cmp.Or(
			cmp.Compare(a.PID, b.PID),
			cmp.Compare(a.LocalIP, b.LocalIP),
			cmp.Compare(a.LocalPort, b.LocalPort),
			cmp.Compare(a.RemoteIP, b.RemoteIP),
			cmp.Compare(a.RemotePort, b.RemotePort),
			cmp.Compare(a.Status, b.Status),
		)
	})
	return keys
}
