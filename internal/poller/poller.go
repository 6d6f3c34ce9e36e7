// Package poller runs the periodic worker pass that moves time forward for
// the whole pipeline: due sequence steps are dispatched and automation rules
// are evaluated against the current CRM state.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	automations "github.com/funnelworks/funnel/internal/automations/application/services"
	"github.com/funnelworks/funnel/internal/automations/domain"
	sequences "github.com/funnelworks/funnel/internal/sequences/application/services"
	"github.com/google/uuid"
)

// Config holds configuration for the poller.
type Config struct {
	PollInterval       time.Duration
	SequencesEnabled   bool
	AutomationsEnabled bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:       time.Minute,
		SequencesEnabled:   true,
		AutomationsEnabled: true,
	}
}

// Stats summarizes poller activity since start.
type Stats struct {
	IsRunning       bool
	Passes          uint64
	StepsSent       uint64
	Completed       uint64
	RulesFired      uint64
	Failures        uint64
	LastError       string
	LastErrorAt     *time.Time
	LastProcessedAt *time.Time
}

// SequenceStepper dispatches due sequence steps.
type SequenceStepper interface {
	ProcessDue(ctx context.Context) (sequences.StepResult, error)
}

// RuleEvaluator evaluates one user's enabled rules.
type RuleEvaluator interface {
	EvaluateAll(ctx context.Context, userID uuid.UUID) (automations.EvaluationResult, error)
}

// Poller owns the ticker loop. One pass runs the sequence stepper once and
// then evaluates rules for every user that has any enabled.
type Poller struct {
	stepper   SequenceStepper
	evaluator RuleEvaluator
	rules     domain.RuleRepository
	config    Config
	logger    *slog.Logger

	wg       sync.WaitGroup
	stopChan chan struct{}
	running  bool
	mu       sync.Mutex

	statsMu sync.Mutex
	stats   Stats
}

// New creates a new poller.
func New(
	stepper SequenceStepper,
	evaluator RuleEvaluator,
	rules domain.RuleRepository,
	config Config,
	logger *slog.Logger,
) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		stepper:   stepper,
		evaluator: evaluator,
		rules:     rules,
		config:    config,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the polling loop in a goroutine.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stopChan = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx)

	p.logger.Info("poller started",
		"poll_interval", p.config.PollInterval,
		"sequences", p.config.SequencesEnabled,
		"automations", p.config.AutomationsEnabled,
	)

	return nil
}

// Stop gracefully stops the poller.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("poller stopped")
}

// IsRunning returns true if the poller is running.
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil {
				p.logger.Error("poll pass failed", "error", err)
			}
		}
	}
}

// RunOnce executes a single pass synchronously.
func (p *Poller) RunOnce(ctx context.Context) error {
	var firstErr error

	if p.config.SequencesEnabled {
		result, err := p.stepper.ProcessDue(ctx)
		if err != nil {
			p.recordError(err)
			firstErr = err
		} else {
			p.recordSteps(result)
		}
	}

	if p.config.AutomationsEnabled {
		if err := p.evaluateAllUsers(ctx); err != nil {
			p.recordError(err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	p.recordPass()
	return firstErr
}

func (p *Poller) evaluateAllUsers(ctx context.Context) error {
	users, err := p.rules.ListUsersWithEnabledRules(ctx)
	if err != nil {
		return err
	}

	var firstErr error
	for _, userID := range users {
		result, err := p.evaluator.EvaluateAll(ctx, userID)
		if err != nil {
			p.logger.Error("rule evaluation failed", "user_id", userID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		p.recordEvaluation(result)
	}
	return firstErr
}

// GetStats returns current poller statistics.
func (p *Poller) GetStats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	stats := p.stats
	stats.IsRunning = p.IsRunning()
	return stats
}

func (p *Poller) recordSteps(result sequences.StepResult) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.StepsSent += uint64(result.Sent)
	p.stats.Completed += uint64(result.Completed)
	p.stats.Failures += uint64(result.Failed)
}

func (p *Poller) recordEvaluation(result automations.EvaluationResult) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.RulesFired += uint64(result.Fired)
	p.stats.Failures += uint64(result.Failed)
}

func (p *Poller) recordPass() {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.Passes++
	now := time.Now()
	p.stats.LastProcessedAt = &now
}

func (p *Poller) recordError(err error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	now := time.Now()
	p.stats.LastError = err.Error()
	p.stats.LastErrorAt = &now
}
