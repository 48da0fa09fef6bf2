package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cognivox/voicescreen/internal/dataset"
	"github.com/cognivox/voicescreen/internal/mfcc"
)

func newDatasetCommand() *cobra.Command {
	var opts dataset.Options

	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Build a labeled training manifest from dementia and normal corpora",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Extract = mfcc.DefaultConfig()
			sum, err := dataset.Build(opts, newLogger(""))
			if err != nil {
				return err
			}
			fmt.Printf("dataset: %d dementia + %d normal speakers, %d files (%d failed)\n",
				sum.DementiaSpeakers, sum.NormalSpeakers, sum.Files, sum.Failed)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.DementiaDir, "dementia-dir", "data", "Directory containing dementia recordings")
	cmd.Flags().StringVar(&opts.NormalDir, "normal-dir", "nodementia", "Directory containing normal recordings")
	cmd.Flags().StringVar(&opts.OutputDir, "output-dir", "data/mfcc_features", "Output directory for feature files")
	cmd.Flags().StringVar(&opts.CSVPath, "csv-output", "data/csv_files/dataset.csv", "Output manifest path")
	return cmd
}
