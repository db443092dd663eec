package calibration

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"rapidkrill/internal/services"
)

func writeCal(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cal.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFileWithTable(t *testing.T) {
	path := writeCal(t, "[calibration]\ngain = 26.5\nsound_speed = 1456.0\nabsorption = 0.041\n")
	cal, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cal.Gain != 26.5 || cal.SoundSpeed != 1456.0 || cal.Absorption != 0.041 {
		t.Fatalf("unexpected calibration: %+v", cal)
	}
}

func TestLoadFileFlatLayout(t *testing.T) {
	path := writeCal(t, "gain = 25.0\n")
	cal, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cal.Gain != 25.0 {
		t.Fatalf("unexpected calibration: %+v", cal)
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestResolveInlineOverridesFile(t *testing.T) {
	path := writeCal(t, "[calibration]\ngain = 26.5\nsound_speed = 1456.0\n")
	cal, err := Resolve(path, Calibration{Gain: 27.1})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cal.Gain != 27.1 {
		t.Fatalf("inline gain should win, got %v", cal.Gain)
	}
	if cal.SoundSpeed != 1456.0 {
		t.Fatalf("file sound speed should fill gap, got %v", cal.SoundSpeed)
	}
}

func TestResolveWithoutFile(t *testing.T) {
	cal, err := Resolve("", Calibration{Absorption: 0.04})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cal.Absorption != 0.04 {
		t.Fatalf("unexpected calibration: %+v", cal)
	}
	if cal.IsZero() {
		t.Fatal("calibration with absorption set should not be zero")
	}
}
