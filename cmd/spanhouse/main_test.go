package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spanhouse/spanhouse/pkg/config"
)

func TestApplyConfigUpdatesChangesLogLevel(t *testing.T) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	updates := make(chan *config.Config, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		applyConfigUpdates(t.Context(), updates, level, logger)
	}()

	cfg := config.Default()
	cfg.Logging.Level = "debug"
	updates <- cfg

	assert.Eventually(t, func() bool {
		return level.Level() == slog.LevelDebug
	}, 2*time.Second, 10*time.Millisecond)

	close(updates)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("updater did not stop after channel close")
	}
}

func TestApplyConfigUpdatesStopsOnContextCancel(t *testing.T) {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan *config.Config)
	done := make(chan struct{})
	go func() {
		defer close(done)
		applyConfigUpdates(ctx, updates, level, logger)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("updater did not stop after cancellation")
	}
}
