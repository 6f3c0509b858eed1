package service

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	ltmmemory "github.com/adrianwedd/ltm-service/internal/memory"
)

// ForgettingService drives the forgetting engine on a periodic tick.
// Failures never propagate to client requests; the next tick is expected to
// recover.
type ForgettingService struct {
	engine   *ltmmemory.ForgettingEngine
	interval time.Duration
}

// NewForgettingService creates the ticker service around the engine.
func NewForgettingService(engine *ltmmemory.ForgettingEngine, interval time.Duration) *ForgettingService {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &ForgettingService{engine: engine, interval: interval}
}

// Start begins the periodic forgetting loop. Returns when ctx is cancelled.
func (s *ForgettingService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.engine.RunOnce(ctx); err != nil {
				log.Error("Forgetting: pass failed", "err", err)
			}
		}
	}
}
