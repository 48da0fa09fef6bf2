package screen

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/cognivox/voicescreen/internal/engine"
	"github.com/cognivox/voicescreen/internal/mfcc"
	"github.com/cognivox/voicescreen/internal/tcn"
)

// Note is attached to every report.
const Note = "This is a screening tool and should not replace professional medical diagnosis."

// ErrModelNotLoaded is returned while no classifier has been published.
// Callers should surface it as a service-unavailable condition; the
// screener never retries internally.
var ErrModelNotLoaded = errors.New("screen: model not loaded")

// Probabilities carries both class probabilities, raw and as
// percentages.
type Probabilities struct {
	Normal             float64 `json:"normal"`
	NormalPercentage   float64 `json:"normal_percentage"`
	Dementia           float64 `json:"dementia"`
	DementiaPercentage float64 `json:"dementia_percentage"`
}

// AudioInfo describes the analyzed input.
type AudioInfo struct {
	LengthSeconds float64 `json:"length_seconds"`
	FeatureShape  [2]int  `json:"mfcc_features_shape"` // (frames, cepstra)
}

// Report is the full screening result for one recording.
type Report struct {
	Status        string        `json:"status"`
	Result        string        `json:"result"`
	Probabilities Probabilities `json:"probabilities"`
	Confidence    float64       `json:"confidence"`
	Message       string        `json:"message"`
	AudioInfo     AudioInfo     `json:"audio_info"`
	Note          string        `json:"note"`
}

// pipeline is the published, immutable inference state. It is swapped
// in as a whole so a request either sees no model or a fully loaded one.
type pipeline struct {
	eng engine.Engine
}

// Screener wires feature extraction, normalization, classification and
// interpretation into a single call. The classifier handle is owned
// here and published with a single atomic transition; concurrent
// Analyze calls share it read-only without locking.
type Screener struct {
	cfg       mfcc.Config
	published atomic.Pointer[pipeline]
}

// New creates a Screener with no model published. Analyze returns
// ErrModelNotLoaded until Publish is called.
func New() *Screener {
	return &Screener{cfg: mfcc.DefaultConfig()}
}

// Publish makes eng the classifier served to subsequent Analyze calls.
// The engine must be fully constructed before it is passed in.
func (s *Screener) Publish(eng engine.Engine) {
	s.published.Store(&pipeline{eng: eng})
}

// Ready reports whether a classifier has been published.
func (s *Screener) Ready() bool {
	return s.published.Load() != nil
}

// EngineName returns the published backend's name, or "" when none is
// published.
func (s *Screener) EngineName() string {
	if p := s.published.Load(); p != nil {
		return p.eng.Name()
	}
	return ""
}

// Close releases the published engine, if any.
func (s *Screener) Close() error {
	if p := s.published.Load(); p != nil {
		return p.eng.Close()
	}
	return nil
}

// Analyze screens one mono 16 kHz waveform and returns the interpreted
// report. The call is synchronous: extraction, normalization and the
// forward pass run sequentially and either complete or fail.
func (s *Screener) Analyze(samples []float64) (*Report, error) {
	p := s.published.Load()
	if p == nil {
		return nil, ErrModelNotLoaded
	}
	features, err := mfcc.Extract(samples, s.cfg)
	if err != nil {
		return nil, err
	}
	seconds := float64(len(samples)) / float64(s.cfg.SampleRate)
	return s.analyze(p, features, seconds)
}

// AnalyzeFeatures screens a precomputed feature matrix. audioSeconds
// may be zero when the source duration is unknown.
func (s *Screener) AnalyzeFeatures(features [][]float32, audioSeconds float64) (*Report, error) {
	p := s.published.Load()
	if p == nil {
		return nil, ErrModelNotLoaded
	}
	return s.analyze(p, features, audioSeconds)
}

func (s *Screener) analyze(p *pipeline, features [][]float32, audioSeconds float64) (*Report, error) {
	frames := len(features)
	cepstra := 0
	if frames > 0 {
		cepstra = len(features[0])
	}

	batch, err := tcn.Normalize([][][]float32{features})
	if err != nil {
		return nil, err
	}
	logits, err := p.eng.Classify(batch)
	if err != nil {
		return nil, err
	}
	if len(logits) != 1 {
		return nil, fmt.Errorf("screen: classifier returned %d results for 1 input", len(logits))
	}

	in := Interpret(logits[0])

	var message string
	if in.Label == LabelDementia {
		message = fmt.Sprintf("High dementia probability detected (%.2f%%). This suggests possible signs of dementia in the voice.", in.DementiaProb*100)
	} else {
		message = fmt.Sprintf("Normal voice detected (%.2f%% confidence). The voice appears to be within normal range.", in.NormalProb*100)
	}

	return &Report{
		Status: "success",
		Result: in.Label,
		Probabilities: Probabilities{
			Normal:             round(in.NormalProb, 4),
			NormalPercentage:   round(in.NormalProb*100, 2),
			Dementia:           round(in.DementiaProb, 4),
			DementiaPercentage: round(in.DementiaProb*100, 2),
		},
		Confidence: round(in.Confidence, 4),
		Message:    message,
		AudioInfo: AudioInfo{
			LengthSeconds: round(audioSeconds, 2),
			FeatureShape:  [2]int{frames, cepstra},
		},
		Note: Note,
	}, nil
}

// round rounds x to the given number of decimal places.
func round(x float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(x*scale) / scale
}
