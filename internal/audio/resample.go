package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts mono samples from one sample rate to another using
// a high-quality polyphase resampler.
func Resample(samples []float64, fromRate, toRate int) ([]float64, error) {
	if fromRate == toRate {
		return samples, nil
	}
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(fromRate),
		OutputRate: float64(toRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: create resampler: %w", err)
	}
	out, err := r.Process(samples)
	if err != nil {
		return nil, fmt.Errorf("audio: resample %d Hz -> %d Hz: %w", fromRate, toRate, err)
	}
	return out, nil
}
