package handlers

import (
	"context"
	"log/slog"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/config"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/database"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/events"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/pipeline"
)

// OrchestratorFactory returns a fresh orchestrator. A zero threshold or
// stride selects the configured default.
type OrchestratorFactory func(threshold float64, stride int) *pipeline.Orchestrator

// HealthChecker probes the store and the detection engine.
type HealthChecker func(ctx context.Context) (storeOK, detectorOK bool)

// Deps are the shared dependencies of all handlers.
type Deps struct {
	Config          *config.Config
	Store           database.IdentityReader
	Sink            *events.Sink
	NewOrchestrator OrchestratorFactory
	Health          HealthChecker
	Logger          *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
