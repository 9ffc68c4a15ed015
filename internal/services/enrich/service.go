// -----------------------------------------------------------------------
// Enrichment service - rate-limited contact pass over stored items
// -----------------------------------------------------------------------

package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
	"golang.org/x/time/rate"
)

// Service walks stored items that have a website but no emails and fetches
// contact details from each site. Requests are paced by a rate limiter,
// cumulative failures add a clamped backoff, and the pass aborts outright
// at the failure cap so a dead network cannot spin forever.
type Service struct {
	store   interfaces.ItemStorage
	fetcher interfaces.ContactFetcher
	limiter *rate.Limiter
	logger  arbor.ILogger

	backoffStep     time.Duration
	backoffMax      time.Duration
	failureLimit    int
	checkpointEvery int
}

// NewService creates an enrichment service from config.
func NewService(store interfaces.ItemStorage, fetcher interfaces.ContactFetcher, cfg common.EnrichmentConfig, logger arbor.ILogger) *Service {
	delay := common.ParseDuration(cfg.RequestDelay, 300*time.Millisecond)
	return &Service{
		store:           store,
		fetcher:         fetcher,
		limiter:         rate.NewLimiter(rate.Every(delay), 1),
		logger:          logger,
		backoffStep:     common.ParseDuration(cfg.BackoffStep, 200*time.Millisecond),
		backoffMax:      common.ParseDuration(cfg.BackoffMax, 3*time.Second),
		failureLimit:    cfg.FailureLimit,
		checkpointEvery: cfg.CheckpointEvery,
	}
}

// Enrich runs one enrichment pass. Each successful site updates its item
// immediately, so an aborted pass keeps everything gathered before the
// abort.
func (s *Service) Enrich(ctx context.Context) (processed, failures int, err error) {
	items, err := s.store.GetAll(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load items: %w", err)
	}

	var candidates int
	for _, item := range items {
		if item.Website == "" || len(item.Emails) > 0 {
			continue
		}
		candidates++

		if s.failureLimit > 0 && failures >= s.failureLimit {
			msg := fmt.Sprintf("enrichment aborted after %d failed fetches", failures)
			s.logger.Error().Int("processed", processed).Msg(msg)
			if serr := s.store.SetLastError(ctx, msg); serr != nil {
				s.logger.Warn().Err(serr).Msg("Failed to record abort reason")
			}
			return processed, failures, nil
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return processed, failures, err
		}
		if err := s.backoffWait(ctx, failures); err != nil {
			return processed, failures, err
		}

		result, ferr := s.fetcher.FetchContacts(ctx, item.Website)
		// Every attempted request counts as processed, failed ones too.
		processed++
		if ferr != nil {
			failures++
			s.logger.Debug().Err(ferr).Str("website", item.Website).Int("failures", failures).Msg("Contact fetch failed")
			continue
		}

		changed := false
		if len(result.Emails) > 0 {
			item.Emails = result.Emails
			changed = true
		}
		if item.Phone == "" && len(result.Phones) > 0 {
			item.Phone = result.Phones[0]
			changed = true
		}
		if changed {
			item.CollectedAt = time.Now()
			if _, serr := s.store.AddItems(ctx, []models.CaptureItem{item}); serr != nil {
				s.logger.Warn().Err(serr).Str("name", item.Name).Msg("Failed to persist enriched item")
			}
		}

		if s.checkpointEvery > 0 && processed%s.checkpointEvery == 0 {
			s.logger.Info().
				Int("processed", processed).
				Int("failures", failures).
				Msg("Enrichment checkpoint")
		}
	}

	s.logger.Info().
		Int("candidates", candidates).
		Int("processed", processed).
		Int("failures", failures).
		Msg("Enrichment pass complete")
	return processed, failures, nil
}

// backoffWait sleeps the failure-scaled backoff: step per cumulative
// failure, clamped at the maximum.
func (s *Service) backoffWait(ctx context.Context, failures int) error {
	d := backoffDelay(failures, s.backoffStep, s.backoffMax)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func backoffDelay(failures int, step, max time.Duration) time.Duration {
	if failures <= 0 || step <= 0 {
		return 0
	}
	d := step * time.Duration(failures)
	if max > 0 && d > max {
		return max
	}
	return d
}
