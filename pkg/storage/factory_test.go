package storage

import (
	"context"
	"io"
	"log"
	"testing"
	"time"
)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestOpenMemoryIsReady(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, "memory", "", quietLogger())
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	defer Close(store)

	// Open initialises the store, so a save works straight away.
	if err := store.SaveRun(ctx, RunRecord{ID: "run-1", Status: StatusRunning, StartedAt: time.Now()}); err != nil {
		t.Fatalf("save run on opened store: %v", err)
	}
	if err := Close(store); err != nil {
		t.Fatalf("close memory store: %v", err)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), "unknown", "", quietLogger()); err == nil {
		t.Fatal("expected an error for an unknown backend")
	}
}
