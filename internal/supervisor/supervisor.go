// Package supervisor layers a dispatch timeout policy on top of the kernel,
// which never times out processor calls itself.
package supervisor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Rogers-F/triad-kernel/internal/domain"
	"github.com/Rogers-F/triad-kernel/internal/kernel"
	"github.com/Rogers-F/triad-kernel/internal/store"
)

// TimeoutReason is the termination reason recorded for timed out processes.
const TimeoutReason = "dispatch_timeout"

// TimeoutAction records a timeout action taken against a process.
type TimeoutAction struct {
	ProcessID string
	Elapsed   time.Duration
}

// SupervisorConfig holds tunable parameters for the supervisor loop.
type SupervisorConfig struct {
	CheckInterval   time.Duration
	DispatchTimeout time.Duration
}

// Supervisor terminates processes that stay Processing too long.
type Supervisor struct {
	Kernel    *kernel.Kernel
	DB        *sql.DB
	AuditRepo *store.AuditRepo
	Clock     clockwork.Clock
	Config    SupervisorConfig

	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewSupervisor creates a Supervisor with sensible defaults for zero-value
// config fields. db may be nil, in which case no audit records are written.
func NewSupervisor(k *kernel.Kernel, db *sql.DB, clk clockwork.Clock, cfg SupervisorConfig, logger *slog.Logger) *Supervisor {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Second
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		Kernel:    k,
		DB:        db,
		AuditRepo: &store.AuditRepo{},
		Clock:     clk,
		Config:    cfg,
		logger:    logger.With("component", "supervisor"),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// CheckTimeouts terminates every Processing process dispatched more than
// DispatchTimeout before now, and returns what it did. A zero timeout
// disables the check.
func (s *Supervisor) CheckTimeouts(ctx context.Context, now time.Time) ([]TimeoutAction, error) {
	if s.Config.DispatchTimeout <= 0 {
		return nil, nil
	}

	var actions []TimeoutAction
	for _, p := range s.Kernel.List() {
		if p.State != domain.ProcessProcessing || p.DispatchedAt.IsZero() {
			continue
		}
		elapsed := now.Sub(p.DispatchedAt)
		if elapsed <= s.Config.DispatchTimeout {
			continue
		}
		if err := s.Kernel.Terminate(p.ID, TimeoutReason); err != nil {
			// Resolved or terminated since List; nothing to do.
			s.logger.Debug("timeout target already gone", "process_id", p.ID, "error", err)
			continue
		}
		actions = append(actions, TimeoutAction{ProcessID: p.ID, Elapsed: elapsed})
		s.logger.Warn("process dispatch timed out", "process_id", p.ID, "elapsed", elapsed, "step", p.CurrentStep)

		if s.DB != nil {
			detail, _ := json.Marshal(map[string]any{
				"elapsed_ms": elapsed.Milliseconds(),
				"timeout_ms": s.Config.DispatchTimeout.Milliseconds(),
				"generation": p.Generation,
			})
			err := s.AuditRepo.Record(ctx, s.DB, domain.AuditRecord{
				ID:         fmt.Sprintf("aud-%s-%d", p.ID, now.UnixNano()),
				ProcessID:  p.ID,
				Category:   "supervisor",
				Actor:      "system",
				Action:     TimeoutReason,
				DetailJSON: string(detail),
				Severity:   "warning",
				CreatedAt:  now.Unix(),
			})
			if err != nil {
				return actions, fmt.Errorf("record timeout audit: %w", err)
			}
		}
	}
	return actions, nil
}

// StartMonitoring spawns a goroutine that periodically checks for timeouts.
func (s *Supervisor) StartMonitoring(ctx context.Context) {
	ticker := s.Clock.NewTicker(s.Config.CheckInterval)
	go func() {
		defer close(s.done)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				if _, err := s.CheckTimeouts(ctx, s.Clock.Now()); err != nil {
					s.logger.Error("timeout check failed", "error", err)
				}
			}
		}
	}()
}

// StopMonitoring signals the monitoring goroutine to stop and waits for it.
// Safe to call multiple times, but only after StartMonitoring.
func (s *Supervisor) StopMonitoring() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
}
