package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestWriter(t *testing.T, cfg *RotationConfig) (*rotatingWriter, string) {
	t.Helper()
	dir := t.TempDir()
	logFile := filepath.Join(dir, "revup.log")
	w, err := newRotatingWriter(logFile, cfg)
	if err != nil {
		t.Fatalf("newRotatingWriter failed: %v", err)
	}
	rw := w.(*rotatingWriter)
	t.Cleanup(func() { _ = rw.Close() })
	return rw, dir
}

func backups(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "revup.*.log"))
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	return matches
}

func TestNewRotatingWriter_Config(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *RotationConfig
		wantErr string
	}{
		{name: "defaults", cfg: nil},
		{name: "explicit", cfg: &RotationConfig{MaxSize: "10MB", MaxAge: "2w", MaxBackups: 5}},
		{name: "bad size", cfg: &RotationConfig{MaxSize: "lots"}, wantErr: "invalid max_size"},
		{name: "bad age", cfg: &RotationConfig{MaxAge: "soon"}, wantErr: "invalid max_age"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logFile := filepath.Join(t.TempDir(), "nested", "logs", "revup.log")
			w, err := newRotatingWriter(logFile, tt.cfg)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("newRotatingWriter failed: %v", err)
			}
			defer func() { _ = w.(*rotatingWriter).Close() }()
			if _, err := os.Stat(logFile); err != nil {
				t.Errorf("expected log file in nested directory: %v", err)
			}
		})
	}
}

func TestRotatingWriter_RotatesOnSize(t *testing.T) {
	rw, dir := newTestWriter(t, &RotationConfig{MaxSize: "64B", MaxBackups: 3})

	first := strings.Repeat("a", 40) + "\n"
	second := strings.Repeat("b", 40) + "\n"
	for _, msg := range []string{first, second} {
		if _, err := rw.Write([]byte(msg)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	if got := backups(t, dir); len(got) != 1 {
		t.Fatalf("expected 1 backup, got %v", got)
	}
	data, err := os.ReadFile(rw.filename)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if string(data) != second {
		t.Errorf("current file = %q, want only the second entry", data)
	}
	if rw.currentSize != int64(len(second)) {
		t.Errorf("currentSize = %d, want %d", rw.currentSize, len(second))
	}
}

func TestRotatingWriter_ForcedRotationsDoNotCollide(t *testing.T) {
	rw, dir := newTestWriter(t, &RotationConfig{MaxBackups: 5})

	for i, msg := range []string{"sighup one\n", "sighup two\n"} {
		if _, err := rw.Write([]byte(msg)); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
		if err := rw.Rotate(); err != nil {
			t.Fatalf("Rotate %d failed: %v", i, err)
		}
	}

	got := backups(t, dir)
	if len(got) != 2 {
		t.Fatalf("expected 2 distinct backups from back-to-back rotations, got %v", got)
	}
	var joined string
	for _, path := range got {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read backup: %v", err)
		}
		joined += string(data)
	}
	for _, want := range []string{"sighup one", "sighup two"} {
		if !strings.Contains(joined, want) {
			t.Errorf("backups lost %q: %q", want, joined)
		}
	}
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	rw, _ := newTestWriter(t, nil)

	if err := rw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	if _, err := rw.Write([]byte("reopened\n")); err != nil {
		t.Fatalf("Write after Close failed: %v", err)
	}
	data, err := os.ReadFile(rw.filename)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "reopened") {
		t.Errorf("expected reopened file to hold the entry, got %q", data)
	}
}

func TestRotatingWriter_KeepsMaxBackups(t *testing.T) {
	rw, dir := newTestWriter(t, &RotationConfig{MaxBackups: 1})

	for i := 0; i < 4; i++ {
		if _, err := rw.Write([]byte("entry\n")); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if err := rw.Rotate(); err != nil {
			t.Fatalf("Rotate failed: %v", err)
		}
	}

	rw.cleanOldLogs()
	if got := backups(t, dir); len(got) > 1 {
		t.Errorf("expected at most 1 backup, got %v", got)
	}
}

func TestRotatingWriter_DropsExpiredBackups(t *testing.T) {
	rw, dir := newTestWriter(t, &RotationConfig{MaxAge: "1d"})

	stale := filepath.Join(dir, "revup.20200101-000000.000000000.log")
	if err := os.WriteFile(stale, []byte("old\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	rw.cleanOldLogs()
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("expected expired backup to be removed, stat err = %v", err)
	}
}
