package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/cognivox/voicescreen/internal/audio"
	"github.com/cognivox/voicescreen/internal/config"
	"github.com/cognivox/voicescreen/internal/screen"
)

func newPredictCommand(configFlag *string) *cobra.Command {
	var serverURL string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "predict <audio-file>",
		Short: "Screen a single audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if serverURL != "" {
				return predictRemote(serverURL, path, asJSON)
			}
			cfg, err := loadConfig(configFlag)
			if err != nil {
				return err
			}
			return predictLocal(cfg, path, asJSON)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "Send the file to a running service instead of loading a model locally")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON report")
	return cmd
}

func predictLocal(cfg config.Config, path string, asJSON bool) error {
	if !audio.IsSupported(filepath.Ext(path)) {
		return fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}

	logger := newLogger(cfg.LogLevel)
	eng, _, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	screener := screen.New()
	screener.Publish(eng)

	samples, err := audio.Load(path)
	if err != nil {
		return err
	}
	report, err := screener.Analyze(samples)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(report)
	return nil
}

func predictRemote(serverURL, path string, asJSON bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Post(serverURL+"/predict", mw.FormDataContentType(), &body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		detail := gjson.GetBytes(raw, "detail").String()
		if detail == "" {
			detail = string(raw)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, detail)
	}

	if asJSON {
		os.Stdout.Write(raw)
		if len(raw) > 0 && raw[len(raw)-1] != '\n' {
			fmt.Println()
		}
		return nil
	}
	printRemoteReport(raw)
	return nil
}

func printReport(r *screen.Report) {
	printResultLine(r.Result, r.Confidence)
	fmt.Printf("  normal:   %6.2f%%\n", r.Probabilities.NormalPercentage)
	fmt.Printf("  dementia: %6.2f%%\n", r.Probabilities.DementiaPercentage)
	fmt.Printf("  audio:    %.2fs, %d frames\n", r.AudioInfo.LengthSeconds, r.AudioInfo.FeatureShape[0])
	fmt.Println()
	fmt.Println(r.Message)
	color.New(color.Faint).Println(r.Note)
}

func printRemoteReport(raw []byte) {
	result := gjson.GetBytes(raw, "result").String()
	printResultLine(result, gjson.GetBytes(raw, "confidence").Float())
	fmt.Printf("  normal:   %6.2f%%\n", gjson.GetBytes(raw, "probabilities.normal_percentage").Float())
	fmt.Printf("  dementia: %6.2f%%\n", gjson.GetBytes(raw, "probabilities.dementia_percentage").Float())
	fmt.Printf("  audio:    %.2fs\n", gjson.GetBytes(raw, "audio_info.length_seconds").Float())
	fmt.Println()
	fmt.Println(gjson.GetBytes(raw, "message").String())
	color.New(color.Faint).Println(gjson.GetBytes(raw, "note").String())
}

func printResultLine(result string, confidence float64) {
	label := color.New(color.FgGreen, color.Bold)
	if result == screen.LabelDementia {
		label = color.New(color.FgRed, color.Bold)
	}
	fmt.Printf("Result: %s (confidence %.1f%%)\n", label.Sprint(result), confidence*100)
}
