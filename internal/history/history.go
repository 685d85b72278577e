// Package history keeps a local record of completed videos so past results
// survive backend project retention and are listable offline.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const schemaVersion = 1

type File struct {
	SchemaVersion int     `json:"schema_version"`
	UpdatedAt     string  `json:"updated_at"`
	Entries       []Entry `json:"entries"`
}

// Entry is one finished video. Newest entries come first.
type Entry struct {
	ProjectID   int64  `json:"project_id"`
	Title       string `json:"title,omitempty"`
	EraPreset   string `json:"era_preset"`
	Duration    int    `json:"duration"`
	Ratio       string `json:"ratio"`
	VideoURL    string `json:"video_url"`
	CompletedAt string `json:"completed_at"`
}

// DefaultPath returns the standard history file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "chronoreel-history.json"
	}
	return filepath.Join(home, ".local", "share", "chronoreel", "history.json")
}

// Read returns the recorded entries, newest first. A missing file is an
// empty history, not an error.
func Read(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history %s: %w", path, err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse history %s: %w", path, err)
	}
	return f.Entries, nil
}

// Append records a completed video at the head of the file. An entry for the
// same project id is replaced rather than duplicated.
func Append(path string, entry Entry) error {
	entries, err := Read(path)
	if err != nil {
		return err
	}
	if entry.CompletedAt == "" {
		entry.CompletedAt = time.Now().UTC().Format(time.RFC3339)
	}

	merged := make([]Entry, 0, len(entries)+1)
	merged = append(merged, entry)
	for _, e := range entries {
		if e.ProjectID == entry.ProjectID {
			continue
		}
		merged = append(merged, e)
	}

	f := File{
		SchemaVersion: schemaVersion,
		UpdatedAt:     time.Now().UTC().Format(time.RFC3339),
		Entries:       merged,
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	data = append(data, '\n')
	return writeBytes(path, data)
}

// writeBytes writes atomically: temp file in the target directory, then
// rename. A crash mid-write never leaves a truncated history behind.
func writeBytes(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".chronoreel-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("atomic rename for %s: %w", path, err)
	}
	return nil
}
