// Package mfcc extracts mel-frequency cepstral coefficients from raw
// audio. The extraction is a pure function of the waveform and the
// configuration: running it twice on the same input yields bit-identical
// output, which keeps features produced at training time and at
// inference time interchangeable.
package mfcc

import (
	"errors"
	"fmt"
	"math"
)

// Config configures MFCC feature extraction.
type Config struct {
	SampleRate  int     // input sample rate in Hz (default: 16000)
	WindowSec   float64 // analysis window length in seconds (default: 0.025)
	HopSec      float64 // hop between successive windows in seconds (default: 0.01)
	NumCepstra  int     // cepstral coefficients per frame (default: 13)
	NumFilters  int     // mel filterbank channels (default: 26)
	PreEmphasis float64 // pre-emphasis coefficient (default: 0.97)
	Lifter      int     // cepstral lifter parameter, 0 disables (default: 22)
	EnergyFloor float64 // floor applied to filterbank energies before log (default: 1e-10)
}

// DefaultConfig returns the extraction parameters the classifier was
// trained with: 16 kHz audio, 25 ms windows at a 10 ms hop, 13 cepstra
// over 26 mel filters.
func DefaultConfig() Config {
	return Config{
		SampleRate:  16000,
		WindowSec:   0.025,
		HopSec:      0.01,
		NumCepstra:  13,
		NumFilters:  26,
		PreEmphasis: 0.97,
		Lifter:      22,
		EnergyFloor: 1e-10,
	}
}

// WindowSamples returns the analysis window length in samples.
func (c Config) WindowSamples() int {
	return int(math.Round(c.WindowSec * float64(c.SampleRate)))
}

// HopSamples returns the hop length in samples.
func (c Config) HopSamples() int {
	return int(math.Round(c.HopSec * float64(c.SampleRate)))
}

// NumFrames returns the number of frames extraction will produce for a
// waveform of n samples: (n - window)/hop + 1, or 0 when n is shorter
// than one window.
func (c Config) NumFrames(n int) int {
	win := c.WindowSamples()
	if n < win {
		return 0
	}
	return (n-win)/c.HopSamples() + 1
}

// ErrEmptyWaveform is returned when the input contains no samples.
var ErrEmptyWaveform = errors.New("mfcc: empty waveform")

// Extract computes MFCC features for a mono waveform.
//
// Input samples are expected in [-1, 1] at cfg.SampleRate. The result
// has shape (numFrames, cfg.NumCepstra). The input slice is not
// modified.
//
// The algorithm:
//  1. Apply pre-emphasis filter
//  2. Split into overlapping frames
//  3. Apply Hamming window
//  4. Compute power spectrum via FFT
//  5. Apply triangular mel filterbank, floor and log the energies
//  6. DCT-II to cepstra, keep the first NumCepstra, apply liftering
func Extract(samples []float64, cfg Config) ([][]float32, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyWaveform
	}
	win := cfg.WindowSamples()
	hop := cfg.HopSamples()
	if len(samples) < win {
		return nil, fmt.Errorf("mfcc: waveform of %d samples is shorter than one %d-sample window", len(samples), win)
	}

	// Pre-emphasis on a copy so the caller's buffer stays untouched.
	emph := make([]float64, len(samples))
	if cfg.PreEmphasis > 0 {
		emph[0] = samples[0] * (1.0 - cfg.PreEmphasis)
		for i := 1; i < len(samples); i++ {
			emph[i] = samples[i] - cfg.PreEmphasis*samples[i-1]
		}
	} else {
		copy(emph, samples)
	}

	numFrames := (len(samples)-win)/hop + 1

	// FFT size: next power of 2 >= window length.
	fftSize := nextPow2(win)
	halfFFT := fftSize/2 + 1

	window := hammingWindow(win)
	filterbank := melFilterbank(cfg.NumFilters, fftSize, cfg.SampleRate)
	dct := dctTable(cfg.NumCepstra, cfg.NumFilters)
	lifter := lifterCoeffs(cfg.NumCepstra, cfg.Lifter)

	result := make([][]float32, numFrames)
	fftBuf := make([]complex128, fftSize)
	powerSpec := make([]float64, halfFFT)
	logEnergy := make([]float64, cfg.NumFilters)

	for f := 0; f < numFrames; f++ {
		offset := f * hop

		for i := range fftBuf {
			fftBuf[i] = 0
		}
		for i := 0; i < win; i++ {
			fftBuf[i] = complex(emph[offset+i]*window[i], 0)
		}

		fft(fftBuf)

		// Power spectrum: |X[k]|^2 / N.
		for k := 0; k < halfFFT; k++ {
			r := real(fftBuf[k])
			im := imag(fftBuf[k])
			powerSpec[k] = (r*r + im*im) / float64(fftSize)
		}

		for m := 0; m < cfg.NumFilters; m++ {
			var energy float64
			for k, w := range filterbank[m] {
				energy += w * powerSpec[k]
			}
			if energy < cfg.EnergyFloor {
				energy = cfg.EnergyFloor
			}
			logEnergy[m] = math.Log(energy)
		}

		frame := make([]float32, cfg.NumCepstra)
		for k := 0; k < cfg.NumCepstra; k++ {
			var c float64
			row := dct[k]
			for m := 0; m < cfg.NumFilters; m++ {
				c += row[m] * logEnergy[m]
			}
			frame[k] = float32(c * lifter[k])
		}
		result[f] = frame
	}

	return result, nil
}

// ExtractBatch runs Extract on each waveform independently. Rows may
// have different lengths and produce different frame counts; the error
// identifies the offending row.
func ExtractBatch(batch [][]float64, cfg Config) ([][][]float32, error) {
	out := make([][][]float32, len(batch))
	for i, samples := range batch {
		feats, err := Extract(samples, cfg)
		if err != nil {
			return nil, fmt.Errorf("mfcc: waveform %d: %w", i, err)
		}
		out[i] = feats
	}
	return out, nil
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// hammingWindow computes a Hamming window of the given length.
func hammingWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// hzToMel converts frequency in Hz to mel scale.
func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

// melToHz converts mel scale to frequency in Hz.
func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// melFilterbank computes triangular mel filterbank weights.
// Returns [numFilters][halfFFT] weights.
func melFilterbank(numFilters, fftSize, sampleRate int) [][]float64 {
	halfFFT := fftSize/2 + 1

	melLow := hzToMel(0)
	melHigh := hzToMel(float64(sampleRate) / 2)

	melPoints := make([]float64, numFilters+2)
	for i := range melPoints {
		melPoints[i] = melLow + float64(i)*(melHigh-melLow)/float64(numFilters+1)
	}

	binIndices := make([]int, numFilters+2)
	for i := range melPoints {
		hz := melToHz(melPoints[i])
		binIndices[i] = int(math.Floor(hz * float64(fftSize) / float64(sampleRate)))
		if binIndices[i] >= halfFFT {
			binIndices[i] = halfFFT - 1
		}
	}

	fb := make([][]float64, numFilters)
	for m := 0; m < numFilters; m++ {
		fb[m] = make([]float64, halfFFT)
		left := binIndices[m]
		center := binIndices[m+1]
		right := binIndices[m+2]

		for k := left; k <= center; k++ {
			if center > left {
				fb[m][k] = float64(k-left) / float64(center-left)
			}
		}
		for k := center; k <= right; k++ {
			if right > center {
				fb[m][k] = float64(right-k) / float64(right-center)
			}
		}
	}
	return fb
}

// dctTable precomputes the orthonormal DCT-II basis rows used to turn
// log filterbank energies into cepstra.
func dctTable(numCepstra, numFilters int) [][]float64 {
	table := make([][]float64, numCepstra)
	scale0 := math.Sqrt(1.0 / float64(numFilters))
	scale := math.Sqrt(2.0 / float64(numFilters))
	for k := 0; k < numCepstra; k++ {
		row := make([]float64, numFilters)
		s := scale
		if k == 0 {
			s = scale0
		}
		for m := 0; m < numFilters; m++ {
			row[m] = s * math.Cos(math.Pi*float64(k)*(2*float64(m)+1)/(2*float64(numFilters)))
		}
		table[k] = row
	}
	return table
}

// lifterCoeffs returns the sinusoidal liftering weights, or all-ones
// when liftering is disabled.
func lifterCoeffs(numCepstra, lifter int) []float64 {
	w := make([]float64, numCepstra)
	if lifter <= 0 {
		for i := range w {
			w[i] = 1
		}
		return w
	}
	for k := range w {
		w[k] = 1 + float64(lifter)/2*math.Sin(math.Pi*float64(k)/float64(lifter))
	}
	return w
}

// fft computes the in-place Cooley-Tukey FFT.
// The input length must be a power of 2.
func fft(x []complex128) {
	n := len(x)
	if n <= 1 {
		return
	}

	// Bit-reversal permutation.
	j := 0
	for i := 1; i < n; i++ {
		bit := n >> 1
		for j&bit != 0 {
			j ^= bit
			bit >>= 1
		}
		j ^= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}

	// Butterfly operations.
	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		angle := -2 * math.Pi / float64(size)
		wn := complex(math.Cos(angle), math.Sin(angle))
		for start := 0; start < n; start += size {
			w := complex(1, 0)
			for k := 0; k < half; k++ {
				u := x[start+k]
				t := w * x[start+k+half]
				x[start+k] = u + t
				x[start+k+half] = u - t
				w *= wn
			}
		}
	}
}
