// Package state keeps small per-user CLI state between invocations, such as
// the task most recently started from this machine.
package state

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/grovetools/tracker/pkg/paths"
)

// Keys used by the tracker commands.
const (
	KeyLastTask = "last_task"
)

// State is a generic key/value document.
type State map[string]interface{}

func stateFilePath() (string, error) {
	dir := paths.StateDir()
	if dir == "" {
		return "", fmt.Errorf("no state directory is available")
	}
	return filepath.Join(dir, "cli-state.yml"), nil
}

// Load reads the state file. A missing file is an empty state.
func Load() (State, error) {
	path, err := stateFilePath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(State), nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	if st == nil {
		st = make(State)
	}
	return st, nil
}

// Save writes the state file, creating the state directory if needed.
func Save(st State) error {
	path, err := stateFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

// GetString returns the string stored under key, or "" when the key is
// missing or holds another type.
func GetString(key string) (string, error) {
	st, err := Load()
	if err != nil {
		return "", err
	}
	s, _ := st[key].(string)
	return s, nil
}

// Set stores value under key.
func Set(key string, value interface{}) error {
	st, err := Load()
	if err != nil {
		return err
	}
	st[key] = value
	return Save(st)
}

// Delete removes key.
func Delete(key string) error {
	st, err := Load()
	if err != nil {
		return err
	}
	if _, ok := st[key]; !ok {
		return nil
	}
	delete(st, key)
	return Save(st)
}
