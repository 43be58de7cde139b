package jobregistry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStore_WriteGetRoundTrip(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)

	now := time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)
	rec := &JobRecord{
		JobID:        "job-1",
		Dialect:      "mql5",
		State:        JobStateSuccess,
		RequestID:    "req-1",
		CreatedAt:    now,
		StartedAt:    &now,
		CompiledFile: "job-1.ex5",
	}

	if err := s.Write(rec); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	got, err := s.Get("job-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.JobID != rec.JobID {
		t.Fatalf("job_id mismatch: got=%q want=%q", got.JobID, rec.JobID)
	}
	if got.State != rec.State {
		t.Fatalf("state mismatch: got=%q want=%q", got.State, rec.State)
	}
	if got.CompiledFile != "job-1.ex5" || got.RequestID != "req-1" {
		t.Fatalf("fields not persisted: %+v", got)
	}

	entries, err := os.ReadDir(s.JobDir("job-1"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "job.json" {
		t.Fatalf("expected only job.json, got %v", entries)
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := NewStore(t.TempDir())

	for _, id := range []string{"nope", "../x", ".."} {
		_, err := s.Get(id)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get(%q) error = %v, want ErrNotFound", id, err)
		}
	}
}

func TestStore_WriteRequiresJobID(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Write(&JobRecord{}); err == nil {
		t.Fatalf("expected error for empty job_id")
	}
	if err := s.Write(nil); err == nil {
		t.Fatalf("expected error for nil record")
	}
}

func TestStore_ListSortsNewestFirst(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)

	t1 := time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 19, 13, 0, 0, 0, time.UTC)

	if err := s.Write(&JobRecord{JobID: "job-1", Dialect: "mql4", State: JobStateFailed, CreatedAt: t1, StartedAt: &t1}); err != nil {
		t.Fatalf("Write job-1: %v", err)
	}
	if err := s.Write(&JobRecord{JobID: "job-2", Dialect: "mql5", State: JobStateSuccess, CreatedAt: t2, StartedAt: &t2}); err != nil {
		t.Fatalf("Write job-2: %v", err)
	}
	// Stray files and unreadable records are skipped.
	if err := os.WriteFile(filepath.Join(root, "README"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write stray file: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "broken"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got, err := s.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("unexpected job count: %d", len(got))
	}
	if got[0].JobID != "job-2" {
		t.Fatalf("expected newest first, got[0]=%q", got[0].JobID)
	}
}

func TestStore_DeadOwnerMarksError(t *testing.T) {
	s := NewStore(t.TempDir())
	now := time.Now().UTC()

	// PID far above any realistic pid_max.
	if err := s.Write(&JobRecord{JobID: "orphan", State: JobStateRunning, PID: 1 << 30, CreatedAt: now, StartedAt: &now}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := s.Get("orphan")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != JobStateError {
		t.Fatalf("state = %q, want %q", got.State, JobStateError)
	}
	if got.EndedAt == nil || got.ErrorSummary == "" {
		t.Fatalf("expected ended_at and error_summary, got %+v", got)
	}
}

func TestStore_OwnRunningJobUntouched(t *testing.T) {
	s := NewStore(t.TempDir())
	now := time.Now().UTC()

	if err := s.Write(&JobRecord{JobID: "live", State: JobStateRunning, PID: os.Getpid(), CreatedAt: now}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Get("live")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != JobStateRunning {
		t.Fatalf("state = %q, want running", got.State)
	}
}

func TestJobState_Terminal(t *testing.T) {
	if JobStateRunning.Terminal() {
		t.Fatalf("running must not be terminal")
	}
	for _, s := range []JobState{JobStateSuccess, JobStateFailed, JobStateError} {
		if !s.Terminal() {
			t.Fatalf("%q should be terminal", s)
		}
	}
}
