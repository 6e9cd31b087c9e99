package linkexpiry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type stubLinks struct {
	swept int64
	nows  []time.Time
	err   error
}

func (s *stubLinks) SweepExpired(_ context.Context, now time.Time) (int64, error) {
	s.nows = append(s.nows, now)
	if s.err != nil {
		return 0, s.err
	}
	return s.swept, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunSweepsWithCurrentTime(t *testing.T) {
	links := &stubLinks{swept: 3}
	w := NewWorker(links, 5*time.Minute, nil, discardLogger())

	before := time.Now()
	if err := w.run(context.Background()); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	after := time.Now()

	if len(links.nows) != 1 {
		t.Fatalf("SweepExpired calls = %d, want 1", len(links.nows))
	}
	now := links.nows[0]
	if now.Before(before) || now.After(after) {
		t.Errorf("sweep time = %v, want between %v and %v", now, before, after)
	}
}

func TestRunSurfacesSweepError(t *testing.T) {
	links := &stubLinks{err: errors.New("db locked")}
	w := NewWorker(links, 5*time.Minute, nil, discardLogger())

	err := w.run(context.Background())
	if err == nil {
		t.Fatal("run() returned nil for a sweep failure")
	}
	if !strings.Contains(err.Error(), "sweep expired links") {
		t.Errorf("error = %v, want sweep expired links wrap", err)
	}
}
