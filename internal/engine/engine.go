// Package engine provides the classifier backends that turn normalized
// feature tensors into class logits.
package engine

import (
	"errors"

	"github.com/cognivox/voicescreen/internal/tcn"
)

// ExpectedSampleRate is the audio sample rate every backend assumes.
const ExpectedSampleRate = 16000

// Logits is one unnormalized class-score pair: index 0 scores
// dementia, index 1 scores normal speech.
type Logits [tcn.NumClasses]float32

// ErrNotReady indicates no model has been loaded into the backend.
var ErrNotReady = errors.New("engine: model not loaded")

// Engine scores batches of normalized feature tensors.
//
// Implementations hold read-only model state after construction and
// must be safe for concurrent Classify calls.
type Engine interface {
	// Classify returns one logit pair per input tensor, preserving order.
	Classify(batch []tcn.Tensor) ([]Logits, error)
	// Name identifies the backend for logs and health reporting.
	Name() string
	// Close releases resources.
	Close() error
}
