// Package dataset builds training manifests from labeled audio corpora.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// FeatureExt is the extension used for serialized MFCC feature files.
const FeatureExt = ".mfc"

// Features is one utterance's extracted MFCC matrix, frame-major.
type Features struct {
	SampleRate int         `msgpack:"sample_rate"`
	Frames     [][]float32 `msgpack:"frames"`
}

// WriteFeatures serializes features to path, creating parent
// directories as needed.
func WriteFeatures(path string, f Features) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure feature directory: %w", err)
		}
	}
	data, err := msgpack.Marshal(&f)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write features: %w", err)
	}
	return nil
}

// ReadFeatures loads a feature file written by WriteFeatures.
func ReadFeatures(path string) (Features, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Features{}, fmt.Errorf("read features: %w", err)
	}
	var f Features
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return Features{}, fmt.Errorf("decode features %s: %w", path, err)
	}
	if len(f.Frames) == 0 {
		return Features{}, fmt.Errorf("feature file %s holds no frames", path)
	}
	return f, nil
}
