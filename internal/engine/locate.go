package engine

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// CheckpointExt is the file extension of native checkpoints.
const CheckpointExt = ".vsw"

// downloadTimeout bounds a checkpoint fetch; checkpoints are tens of
// megabytes, so this is generous.
const downloadTimeout = 2 * time.Minute

// ErrNoCheckpoint indicates no checkpoint could be located.
var ErrNoCheckpoint = errors.New("engine: no checkpoint found")

// LocateCheckpoint resolves the weights checkpoint to load, in priority
// order: the explicit path, then the URL (downloaded to a temp file),
// then the most recently modified *.vsw file under dir. The returned
// cleanup removes any downloaded temp file and is never nil.
func LocateCheckpoint(explicit, url, dir, authToken string) (path string, cleanup func(), err error) {
	cleanup = func() {}

	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", cleanup, fmt.Errorf("engine: checkpoint %s: %w", explicit, err)
		}
		return explicit, cleanup, nil
	}

	if url != "" {
		tmp, err := downloadCheckpoint(url, authToken)
		if err != nil {
			return "", cleanup, err
		}
		return tmp, func() { os.Remove(tmp) }, nil
	}

	if dir != "" {
		newest, err := newestCheckpoint(dir)
		if err != nil {
			return "", cleanup, err
		}
		return newest, cleanup, nil
	}

	return "", cleanup, ErrNoCheckpoint
}

// downloadCheckpoint fetches a checkpoint over HTTP(S) into a temp
// file. An auth token, if given, is sent as a bearer credential.
func downloadCheckpoint(url, authToken string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("engine: checkpoint url: %w", err)
	}
	req.Header.Set("User-Agent", "voicescreen/1.0")
	if authToken != "" {
		if !strings.HasPrefix(authToken, "Bearer ") {
			authToken = "Bearer " + authToken
		}
		req.Header.Set("Authorization", authToken)
	}

	client := &http.Client{Timeout: downloadTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("engine: download checkpoint: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("engine: download checkpoint: HTTP %d from %s", resp.StatusCode, url)
	}

	tmp, err := os.CreateTemp("", "voicescreen-*"+CheckpointExt)
	if err != nil {
		return "", fmt.Errorf("engine: create temp checkpoint: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("engine: save checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("engine: save checkpoint: %w", err)
	}
	return tmp.Name(), nil
}

// newestCheckpoint returns the most recently modified checkpoint under
// dir, ignoring files with "tmp" in their name.
func newestCheckpoint(dir string) (string, error) {
	type candidate struct {
		path string
		mod  time.Time
	}
	var found []candidate

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if filepath.Ext(name) != CheckpointExt || strings.Contains(name, "tmp") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		found = append(found, candidate{path: path, mod: info.ModTime()})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("engine: scan %s: %w", dir, err)
	}
	if len(found) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoCheckpoint, dir)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].mod.After(found[j].mod) })
	return found[0].path, nil
}
