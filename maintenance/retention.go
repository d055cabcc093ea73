// Package maintenance provides a background retention service for
// conversation storage: idle conversations are archived, and archived
// conversations past their retention window are deleted.
package maintenance

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/workspaced/convo/storage"
)

// Default retention configuration values
const (
	DefaultInterval          = 1 * time.Hour
	DefaultIdleTimeout       = 30 * 24 * time.Hour
	DefaultArchivedRetention = 90 * 24 * time.Hour
)

// RetentionConfig holds configuration for the retention service.
type RetentionConfig struct {
	// Interval is how often the retention pass runs.
	// Default: 1 hour
	Interval time.Duration

	// IdleTimeout is how long a conversation can go without updates
	// before it is archived. Zero disables archiving.
	// Default: 30 days
	IdleTimeout time.Duration

	// ArchivedRetention is how long an archived conversation is kept
	// before it is deleted. Zero disables deletion.
	// Default: 90 days
	ArchivedRetention time.Duration

	// OnArchive is called after a pass that archived conversations.
	OnArchive func(count int)

	// OnPurge is called after a pass that deleted conversations.
	OnPurge func(count int)

	// OnError is called for each error during a pass.
	OnError func(err error)
}

// DefaultRetentionConfig returns the default retention configuration.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		Interval:          DefaultInterval,
		IdleTimeout:       DefaultIdleTimeout,
		ArchivedRetention: DefaultArchivedRetention,
	}
}

// RetentionResult holds the results of one retention pass.
type RetentionResult struct {
	// Archived is the number of idle conversations archived.
	Archived int

	// Purged is the number of archived conversations deleted.
	Purged int

	// Errors contains any errors that occurred during the pass.
	Errors []error
}

// Retention runs the periodic retention pass. Run one per deployment;
// the pass is idempotent but there is no point duplicating it.
type Retention struct {
	store  storage.Store
	config *RetentionConfig

	started atomic.Bool
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewRetention creates a new retention service.
func NewRetention(store storage.Store, config *RetentionConfig) *Retention {
	if config == nil {
		config = DefaultRetentionConfig()
	}

	return &Retention{
		store:  store,
		config: config,
		done:   make(chan struct{}),
	}
}

// Start begins the retention loop. It returns immediately and runs
// passes in a goroutine.
func (r *Retention) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx, r.cancel = context.WithCancel(ctx)
	go r.run(ctx)

	return nil
}

// Stop stops the retention loop.
func (r *Retention) Stop(ctx context.Context) error {
	if !r.started.Load() {
		return ErrNotStarted
	}

	r.cancel()
	<-r.done

	r.started.Store(false)
	return nil
}

// IsRunning returns true if the retention service is running.
func (r *Retention) IsRunning() bool {
	return r.started.Load()
}

func (r *Retention) run(ctx context.Context) {
	defer close(r.done)

	// Run a pass immediately on start
	r.runPass(ctx)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runPass(ctx)
		}
	}
}

func (r *Retention) runPass(ctx context.Context) {
	result := r.RunOnce(ctx)

	if r.config.OnArchive != nil && result.Archived > 0 {
		r.config.OnArchive(result.Archived)
	}

	if r.config.OnPurge != nil && result.Purged > 0 {
		r.config.OnPurge(result.Purged)
	}

	if r.config.OnError != nil {
		for _, err := range result.Errors {
			r.config.OnError(err)
		}
	}
}

// RunOnce performs one retention pass and returns the result. This can
// be called manually for testing or one-off maintenance.
func (r *Retention) RunOnce(ctx context.Context) *RetentionResult {
	result := &RetentionResult{}

	convs, err := r.store.ListConversations(ctx, true)
	if err != nil {
		result.Errors = append(result.Errors, err)
		return result
	}

	now := time.Now().UTC()
	for _, conv := range convs {
		switch {
		case conv.IsArchived:
			if r.config.ArchivedRetention <= 0 {
				continue
			}
			if now.Sub(conv.UpdatedAt) < r.config.ArchivedRetention {
				continue
			}
			if err := r.store.DeleteConversation(ctx, conv.ID); err != nil {
				result.Errors = append(result.Errors, err)
				continue
			}
			result.Purged++

		default:
			if r.config.IdleTimeout <= 0 {
				continue
			}
			if now.Sub(conv.UpdatedAt) < r.config.IdleTimeout {
				continue
			}
			if err := r.store.ArchiveConversation(ctx, conv.ID); err != nil {
				result.Errors = append(result.Errors, err)
				continue
			}
			result.Archived++
		}
	}

	return result
}
