package audio

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// TargetSampleRate is the rate every loaded waveform is delivered at.
const TargetSampleRate = 16000

// SupportedExtensions lists the upload formats the service accepts.
// Anything that is not WAV is converted through ffmpeg.
var SupportedExtensions = []string{".wav", ".mp3", ".flac", ".m4a", ".ogg", ".aac"}

// IsSupported reports whether ext (including the dot, any case) is an
// accepted audio format.
func IsSupported(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Load reads an audio file of any supported format and returns mono
// samples at TargetSampleRate.
//
// WAV files are decoded natively and resampled if needed; other formats
// are converted by shelling out to ffmpeg, which must be on PATH.
func Load(path string) ([]float64, error) {
	if strings.ToLower(filepath.Ext(path)) == ".wav" {
		samples, rate, err := loadWAV(path)
		if err != nil {
			return nil, err
		}
		return Resample(samples, rate, TargetSampleRate)
	}

	wavPath, err := convertToWAV(path)
	if err != nil {
		return nil, err
	}
	defer os.Remove(wavPath)

	samples, rate, err := loadWAV(wavPath)
	if err != nil {
		return nil, err
	}
	if rate != TargetSampleRate {
		return nil, fmt.Errorf("audio: ffmpeg produced %d Hz output, want %d", rate, TargetSampleRate)
	}
	return samples, nil
}

func loadWAV(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("audio: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// convertToWAV transcodes any audio file to a temporary 16 kHz mono
// s16le WAV and returns its path. The caller removes the file.
func convertToWAV(inputPath string) (string, error) {
	if _, err := os.Stat(inputPath); err != nil {
		return "", fmt.Errorf("audio: input file: %w", err)
	}

	outputFile := filepath.Join(os.TempDir(), fmt.Sprintf("voicescreen_%d.wav", time.Now().UnixNano()))

	cmd := exec.Command(
		"ffmpeg",
		"-y",
		"-i", inputPath,
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprint(TargetSampleRate),
		"-ac", "1",
		outputFile,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(outputFile)
		return "", fmt.Errorf("audio: ffmpeg conversion failed: %v, output: %s", err, output)
	}
	return outputFile, nil
}
