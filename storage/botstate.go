package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/volbreak/volbreak/core"
)

const stateFile = "bot_state.json"

// BotState is the optional last-known-position snapshot used by the
// restart-with-open-position workflow.
type BotState struct {
	Position *core.Position `json:"position,omitempty"`
	SavedAt  time.Time      `json:"saved_at"`
}

// SaveBotState writes the state atomically (temp file + rename).
func SaveBotState(dir string, state BotState) error {
	content, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal bot state: %w", err)
	}

	path := filepath.Join(dir, stateFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("write bot state: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadBotState reads the saved state. A missing file is not an error.
func LoadBotState(dir string) (BotState, error) {
	content, err := os.ReadFile(filepath.Join(dir, stateFile))
	if os.IsNotExist(err) {
		return BotState{}, nil
	}
	if err != nil {
		return BotState{}, fmt.Errorf("read bot state: %w", err)
	}

	var state BotState
	if err := json.Unmarshal(content, &state); err != nil {
		return BotState{}, fmt.Errorf("parse bot state: %w", err)
	}
	return state, nil
}

// ClearBotState removes the saved state, if present.
func ClearBotState(dir string) error {
	err := os.Remove(filepath.Join(dir, stateFile))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
