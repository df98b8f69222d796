// internal/replay/recording.go
package replay

import (
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/replay-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DecodeRecording reads a recording and validates every step. A bare JSON
// array is accepted as a recording without a name.
func DecodeRecording(r io.Reader) (*schemas.Recording, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read recording: %w", err)
	}
	var rec schemas.Recording
	if iter := json.BorrowIterator(raw); iter.WhatIsNext() == jsoniter.ArrayValue {
		json.ReturnIterator(iter)
		if err := json.Unmarshal(raw, &rec.Steps); err != nil {
			return nil, fmt.Errorf("failed to decode steps: %w", err)
		}
	} else {
		json.ReturnIterator(iter)
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode recording: %w", err)
		}
	}
	if len(rec.Steps) == 0 {
		return nil, fmt.Errorf("recording contains no steps")
	}
	for i := range rec.Steps {
		if err := rec.Steps[i].Validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}
	return &rec, nil
}

// LoadRecording reads a recording file.
func LoadRecording(path string) (*schemas.Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()
	return DecodeRecording(f)
}
