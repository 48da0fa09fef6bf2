package main

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cognivox/voicescreen/internal/audio"
	"github.com/cognivox/voicescreen/internal/dataset"
	"github.com/cognivox/voicescreen/internal/mfcc"
)

func newPreprocessCommand() *cobra.Command {
	var outputDir string
	var batch bool

	cmd := &cobra.Command{
		Use:   "preprocess <audio-file-or-dir>",
		Short: "Extract MFCC features to " + dataset.FeatureExt + " files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if batch {
				return preprocessDir(args[0], outputDir)
			}
			out, err := preprocessFile(args[0], outputDir)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", ".", "Directory for feature files")
	cmd.Flags().BoolVar(&batch, "batch", false, "Treat the argument as a directory and convert every audio file in it")
	return cmd
}

func preprocessFile(path, outputDir string) (string, error) {
	if !audio.IsSupported(filepath.Ext(path)) {
		return "", fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
	samples, err := audio.Load(path)
	if err != nil {
		return "", err
	}
	frames, err := mfcc.Extract(samples, mfcc.DefaultConfig())
	if err != nil {
		return "", err
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(outputDir, stem+dataset.FeatureExt)
	if err := dataset.WriteFeatures(out, dataset.Features{
		SampleRate: audio.TargetSampleRate,
		Frames:     frames,
	}); err != nil {
		return "", err
	}
	return out, nil
}

func preprocessDir(dir, outputDir string) error {
	converted := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !audio.IsSupported(filepath.Ext(path)) {
			return nil
		}
		out, convErr := preprocessFile(path, outputDir)
		if convErr != nil {
			fmt.Printf("skipping %s: %v\n", path, convErr)
			return nil
		}
		fmt.Println(out)
		converted++
		return nil
	})
	if err != nil {
		return err
	}
	if converted == 0 {
		return fmt.Errorf("no audio files found in %s", dir)
	}
	fmt.Printf("converted %d files\n", converted)
	return nil
}
