//go:build onnx

package engine

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// NOTE: The primary production lookup path (lib/<os>-<arch>/ relative to
// executable) is NOT directly tested here because it requires controlling
// the test binary's location on the filesystem, which is fragile across CI
// environments. It is exercised by running the actual binary with the ONNX
// Runtime in the packaged location.
//
// Tests below cover: env override, CWD fallback (dev mode), and error cases.

func TestResolveORTLibPath_EnvOverride(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "fake_ort_*.so")
	if err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()
	defer os.Remove(tmpFile.Name())

	t.Setenv("VOICESCREEN_ORT_LIB_PATH", tmpFile.Name())
	t.Setenv("VOICESCREEN_DEV_MODE", "") // ensure dev mode is off

	path, err := resolveORTLibPath()
	if err != nil {
		t.Fatalf("resolveORTLibPath failed: %v", err)
	}
	if path != tmpFile.Name() {
		t.Errorf("expected %q, got %q", tmpFile.Name(), path)
	}
}

func TestResolveORTLibPath_EnvOverrideMissing(t *testing.T) {
	t.Setenv("VOICESCREEN_ORT_LIB_PATH", "/nonexistent/path/to/ort.so")
	t.Setenv("VOICESCREEN_DEV_MODE", "")

	_, err := resolveORTLibPath()
	if err == nil {
		t.Fatal("expected error for non-existent VOICESCREEN_ORT_LIB_PATH")
	}
}

func TestResolveORTLibPath_EnvOverrideIsDirectory(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "ort_dir_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	t.Setenv("VOICESCREEN_ORT_LIB_PATH", tmpDir)
	t.Setenv("VOICESCREEN_DEV_MODE", "")

	_, err = resolveORTLibPath()
	if err == nil {
		t.Fatal("expected error when VOICESCREEN_ORT_LIB_PATH is a directory")
	}
}

func TestResolveORTLibPath_CwdFallbackDevMode(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "ort_cwd_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	libDir := filepath.Join(tmpDir, "lib", runtime.GOOS+"-"+runtime.GOARCH)
	if err := os.MkdirAll(libDir, 0755); err != nil {
		t.Fatal(err)
	}
	libPath := filepath.Join(libDir, ortLibFilename())
	if err := os.WriteFile(libPath, []byte("fake"), 0644); err != nil {
		t.Fatal(err)
	}

	origDir, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(origDir)

	t.Setenv("VOICESCREEN_ORT_LIB_PATH", "") // no override
	t.Setenv("VOICESCREEN_DEV_MODE", "1")

	path, err := resolveORTLibPath()
	if err != nil {
		t.Fatalf("resolveORTLibPath failed in dev mode with CWD lib: %v", err)
	}
	// Normalize paths to handle symlinks (e.g., /var vs /private/var on macOS).
	absPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		t.Fatalf("EvalSymlinks(%q): %v", path, err)
	}
	absLibPath, err := filepath.EvalSymlinks(libPath)
	if err != nil {
		t.Fatalf("EvalSymlinks(%q): %v", libPath, err)
	}
	if absPath != absLibPath {
		t.Errorf("expected %q, got %q", absLibPath, absPath)
	}
}

func TestResolveORTLibPath_CwdIgnoredWithoutDevMode(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "ort_nodev_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	libDir := filepath.Join(tmpDir, "lib", runtime.GOOS+"-"+runtime.GOARCH)
	if err := os.MkdirAll(libDir, 0755); err != nil {
		t.Fatal(err)
	}
	libPath := filepath.Join(libDir, ortLibFilename())
	if err := os.WriteFile(libPath, []byte("fake"), 0644); err != nil {
		t.Fatal(err)
	}

	origDir, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(origDir)

	t.Setenv("VOICESCREEN_ORT_LIB_PATH", "") // no override
	t.Setenv("VOICESCREEN_DEV_MODE", "")     // dev mode OFF

	path, err := resolveORTLibPath()
	if err == nil {
		// The library may legitimately be found next to the test binary.
		// What must never happen is resolution through the CWD.
		absCwdLib, evalErr := filepath.EvalSymlinks(libPath)
		if evalErr != nil {
			t.Fatalf("EvalSymlinks(%q): %v", libPath, evalErr)
		}
		absResolved, evalErr := filepath.EvalSymlinks(path)
		if evalErr != nil {
			t.Fatalf("EvalSymlinks(%q): %v", path, evalErr)
		}
		if absResolved == absCwdLib {
			t.Errorf("resolveORTLibPath returned CWD path %q without dev mode", path)
		}
	}
}

func TestOrtLibFilename(t *testing.T) {
	name := ortLibFilename()
	if name == "" {
		t.Fatal("ortLibFilename returned empty string")
	}
	if !strings.Contains(name, "onnxruntime") {
		t.Errorf("ortLibFilename() = %q, want an onnxruntime library name", name)
	}
}
