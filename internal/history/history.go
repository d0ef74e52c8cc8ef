// Package history records deploy attempts in a project-local YAML file so
// that past runs, uploads and schedules can be listed later.
package history

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultDir holds the history file, relative to the project root.
	DefaultDir = ".vertex-deployer"
	// FileName is the name of the history file.
	FileName = "history.yaml"
	// BackupSuffix is appended to a history file that cannot be parsed.
	BackupSuffix = ".backup"
	// DefaultMaxEntries bounds the number of retained entries.
	DefaultMaxEntries = 200
)

// Status is the state of a deploy attempt.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Entry is one deploy attempt.
type Entry struct {
	ID          string     `yaml:"id"`
	Pipeline    string     `yaml:"pipeline"`
	Steps       []string   `yaml:"steps"`
	Tags        []string   `yaml:"tags,omitempty"`
	ConfigPath  string     `yaml:"config_path,omitempty"`
	Status      Status     `yaml:"status"`
	StartedAt   time.Time  `yaml:"started_at"`
	CompletedAt *time.Time `yaml:"completed_at,omitempty"`
	Duration    string     `yaml:"duration,omitempty"`
	JobName     string     `yaml:"job_name,omitempty"`
	Schedule    string     `yaml:"schedule,omitempty"`
	Error       string     `yaml:"error,omitempty"`
}

// File is the on-disk document. Entries are ordered oldest first.
type File struct {
	Entries []Entry `yaml:"entries"`
}

// Path returns the history file location inside dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Load reads the history in dir. A missing file yields an empty history. A
// corrupted file is renamed with BackupSuffix and replaced by an empty one.
func Load(dir string) (*File, error) {
	path := Path(dir)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &File{Entries: []Entry{}}, nil
		}
		return nil, fmt.Errorf("reading history file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		if err := os.Rename(path, path+BackupSuffix); err != nil {
			return nil, fmt.Errorf("backing up corrupted history file: %w", err)
		}
		return &File{Entries: []Entry{}}, nil
	}
	if f.Entries == nil {
		f.Entries = []Entry{}
	}
	return &f, nil
}

// Save writes f to dir atomically, creating dir if needed.
func Save(dir string, f *File) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating history directory: %w", err)
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshaling history: %w", err)
	}

	path := Path(dir)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing temp history file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming temp history file: %w", err)
	}
	return nil
}

// Clear removes every entry.
func Clear(dir string) error {
	return Save(dir, &File{Entries: []Entry{}})
}

// Filter returns the most recent entries, newest first. An empty pipeline
// matches every entry; limit <= 0 means no limit.
func Filter(entries []Entry, pipeline string, limit int) []Entry {
	var out []Entry
	for i := len(entries) - 1; i >= 0; i-- {
		if pipeline != "" && entries[i].Pipeline != pipeline {
			continue
		}
		out = append(out, entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
