package dataset

import (
	"encoding/csv"
	"fmt"
	"hash/fnv"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/cognivox/voicescreen/internal/audio"
	"github.com/cognivox/voicescreen/internal/mfcc"
)

// TaskName labels the classification task in the generated task file.
const TaskName = "norm_vs_ad"

// Options configures a dataset build.
type Options struct {
	DementiaDir string
	NormalDir   string
	OutputDir   string
	CSVPath     string
	Extract     mfcc.Config
}

// Summary reports what a build produced.
type Summary struct {
	DementiaSpeakers int
	NormalSpeakers   int
	Files            int
	Failed           int
}

type speakerRow struct {
	name     string
	id       string
	features []string
	label    int
}

// Build converts every supported audio file under the dementia and
// normal directories to feature files, grouped by speaker, and writes
// a combined CSV manifest plus a task file next to it.
func Build(opts Options, log *slog.Logger) (Summary, error) {
	var sum Summary
	if opts.DementiaDir == "" || opts.NormalDir == "" {
		return sum, fmt.Errorf("dataset: both dementia and normal directories are required")
	}
	if opts.CSVPath == "" {
		return sum, fmt.Errorf("dataset: manifest path is required")
	}
	if opts.Extract.SampleRate == 0 {
		opts.Extract = mfcc.DefaultConfig()
	}

	dementia, failed, err := convertDirectory(opts.DementiaDir, opts.OutputDir, opts.Extract, log)
	if err != nil {
		return sum, err
	}
	sum.Failed += failed
	normal, failed, err := convertDirectory(opts.NormalDir, opts.OutputDir, opts.Extract, log)
	if err != nil {
		return sum, err
	}
	sum.Failed += failed

	// A speaker appearing in both corpora keeps the dementia label
	// under the original name; the normal recordings get a suffix.
	for name := range dementia {
		if files, ok := normal[name]; ok {
			log.Warn("speaker present in both corpora, renaming normal side",
				"speaker", name)
			normal[name+"_normal"] = files
			delete(normal, name)
		}
	}

	var rows []speakerRow
	for name, files := range dementia {
		rows = append(rows, speakerRow{name: name, id: speakerID(name), features: files, label: 1})
	}
	for name, files := range normal {
		rows = append(rows, speakerRow{name: name, id: speakerID(name), features: files, label: 0})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })

	sum.DementiaSpeakers = len(dementia)
	sum.NormalSpeakers = len(normal)
	for _, r := range rows {
		sum.Files += len(r.features)
	}
	if sum.Files == 0 {
		return sum, fmt.Errorf("dataset: no audio files converted, manifest not written")
	}

	if err := writeManifest(opts.CSVPath, rows); err != nil {
		return sum, err
	}
	if err := writeTaskFile(opts.CSVPath); err != nil {
		return sum, err
	}

	log.Info("dataset built",
		"dementia_speakers", sum.DementiaSpeakers,
		"normal_speakers", sum.NormalSpeakers,
		"files", sum.Files,
		"failed", sum.Failed,
		"manifest", opts.CSVPath)
	return sum, nil
}

// convertDirectory walks dir, extracts features for every supported
// audio file, and returns feature paths grouped by speaker name.
func convertDirectory(dir, outputDir string, cfg mfcc.Config, log *slog.Logger) (map[string][]string, int, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, 0, fmt.Errorf("dataset: resolve %s: %w", dir, err)
	}
	if _, err := os.Stat(root); err != nil {
		return nil, 0, fmt.Errorf("dataset: directory %s: %w", dir, err)
	}

	grouped := make(map[string][]string)
	failed := 0
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !audio.IsSupported(filepath.Ext(path)) {
			return nil
		}
		speaker := speakerName(root, path)
		out, convErr := convertFile(path, outputDir, speaker, cfg)
		if convErr != nil {
			log.Warn("skipping file", "path", path, "error", convErr)
			failed++
			return nil
		}
		grouped[speaker] = append(grouped[speaker], out)
		return nil
	})
	if walkErr != nil {
		return nil, failed, fmt.Errorf("dataset: walk %s: %w", dir, walkErr)
	}
	for _, files := range grouped {
		sort.Strings(files)
	}
	return grouped, failed, nil
}

func convertFile(path, outputDir, speaker string, cfg mfcc.Config) (string, error) {
	samples, err := audio.Load(path)
	if err != nil {
		return "", err
	}
	frames, err := mfcc.Extract(samples, cfg)
	if err != nil {
		return "", err
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(outputDir, speaker, stem+FeatureExt)
	if err := WriteFeatures(out, Features{SampleRate: audio.TargetSampleRate, Frames: frames}); err != nil {
		return "", err
	}
	return out, nil
}

// speakerName derives the speaker from the file's parent directory;
// files sitting directly in the corpus root fall back to the filename
// stem before the first underscore.
func speakerName(root, path string) string {
	parent := filepath.Dir(path)
	if parent != root {
		return filepath.Base(parent)
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if i := strings.Index(stem, "_"); i > 0 {
		return stem[:i]
	}
	return stem
}

var digitRun = regexp.MustCompile(`\d+`)

// speakerID produces a subject identifier: the first run of digits in
// the name zero-padded to at least four, or a stable hash otherwise.
func speakerID(name string) string {
	if m := digitRun.FindString(name); m != "" {
		if len(m) >= 4 {
			return m
		}
		return strings.Repeat("0", 4-len(m)) + m
	}
	h := fnv.New32a()
	h.Write([]byte(name))
	return fmt.Sprintf("%04d", h.Sum32()%10000)
}

func writeManifest(csvPath string, rows []speakerRow) error {
	dir := filepath.Dir(csvPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("dataset: ensure manifest directory: %w", err)
	}
	f, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("dataset: create manifest: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"idtype", "id", "feature_files", "is_demented_at_recording", "speaker_name"}); err != nil {
		return fmt.Errorf("dataset: write manifest header: %w", err)
	}
	for _, r := range rows {
		rel := make([]string, 0, len(r.features))
		for _, p := range r.features {
			rp, relErr := filepath.Rel(dir, p)
			if relErr != nil {
				rp = p
			}
			rel = append(rel, rp)
		}
		record := []string{
			"FHS",
			r.id,
			strings.Join(rel, ";"),
			fmt.Sprintf("%d", r.label),
			r.name,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("dataset: write manifest row for %s: %w", r.name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("dataset: flush manifest: %w", err)
	}
	return nil
}

// writeTaskFile drops task_csvs.txt next to the manifest so training
// tooling can locate it.
func writeTaskFile(csvPath string) error {
	dir := filepath.Dir(csvPath)
	line := fmt.Sprintf("%s,%s\n", filepath.Base(csvPath), TaskName)
	taskPath := filepath.Join(dir, "task_csvs.txt")
	if err := os.WriteFile(taskPath, []byte(line), 0o644); err != nil {
		return fmt.Errorf("dataset: write task file: %w", err)
	}
	return nil
}
