// -----------------------------------------------------------------------
// Capture session - watches the results feed and forwards drafts
// -----------------------------------------------------------------------

package capture

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
	"github.com/ternarybob/prospector/internal/services/extract"
)

// Session runs one capture pass over a niche/location search: it watches
// the results feed for mutations, extracts listing drafts, forwards them to
// the background context, and feeds the detail crawler. Scans are
// debounce-coalesced: a mutation burst produces one scan after the quiet
// period, and an unconditional rescan tick catches anything the observer
// missed.
type Session struct {
	driver  PageDriver
	engine  *extract.Engine
	client  interfaces.BusClient
	sched   Scheduler
	crawler *Crawler
	logger  arbor.ILogger
	cfg     common.CaptureConfig

	mu      sync.Mutex
	lastGen int64
	scrolls int
	atEnd   bool
}

// NewSession wires a capture session against a started driver.
func NewSession(driver PageDriver, engine *extract.Engine, client interfaces.BusClient, sched Scheduler, crawler *Crawler, cfg common.CaptureConfig, logger arbor.ILogger) *Session {
	return &Session{
		driver:  driver,
		engine:  engine,
		client:  client,
		sched:   sched,
		crawler: crawler,
		logger:  logger,
		cfg:     cfg,
	}
}

// Run executes the capture loop for one search until the session timeout or
// ctx cancellation. The stored item set survives the session; only the
// capturing flag is reset on the way out.
func (s *Session) Run(ctx context.Context, niche, location string) error {
	timeout := common.ParseDuration(s.cfg.SessionTimeout, 30*time.Minute)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	searchURL := SearchURL(s.cfg.BaseURL, niche, location)
	s.logger.Info().
		Str("niche", niche).
		Str("location", location).
		Str("url", searchURL).
		Msg("Starting capture session")

	if err := s.driver.Navigate(ctx, searchURL); err != nil {
		return err
	}
	if clicked, err := s.driver.AcceptConsent(ctx); err == nil && clicked {
		s.logger.Debug().Msg("Dismissed consent interstitial")
	}
	if err := s.driver.InstallMutationObserver(ctx); err != nil {
		return err
	}

	s.setCapturing(ctx, true)
	defer s.setCapturing(context.Background(), false)

	s.crawler.SetHomeURL(searchURL)

	rescan := common.ParseDuration(s.cfg.RescanInterval, 5*time.Second)
	stopRescan := s.sched.Every(rescan, func() { s.Scan(ctx) })
	defer stopRescan()

	if scroll := common.ParseDuration(s.cfg.ScrollInterval, 0); scroll > 0 {
		stopScroll := s.sched.Every(scroll, func() { s.autoScroll(ctx) })
		defer stopScroll()
	}

	// First scan picks up whatever rendered before the observer existed.
	s.Scan(ctx)

	poll := common.ParseDuration(s.cfg.PollInterval, 250*time.Millisecond)
	for {
		if err := s.sched.Sleep(ctx, poll); err != nil {
			s.logger.Info().Msg("Capture session ended")
			return nil
		}
		s.PollOnce(ctx)
	}
}

// PollOnce samples the mutation generation counter and schedules a
// debounced scan when the feed changed. A counter that went backwards means
// the page was replaced (detail crawl navigation), so the observer is
// reinstalled.
func (s *Session) PollOnce(ctx context.Context) {
	gen, err := s.driver.MutationGeneration(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Mutation poll failed")
		return
	}

	s.mu.Lock()
	last := s.lastGen
	s.lastGen = gen
	s.mu.Unlock()

	if gen < last {
		if err := s.driver.InstallMutationObserver(ctx); err != nil {
			s.logger.Debug().Err(err).Msg("Observer reinstall failed")
		}
		return
	}
	if gen == last {
		return
	}

	debounce := common.ParseDuration(s.cfg.Debounce, 800*time.Millisecond)
	s.sched.Schedule(debounce, func() { s.Scan(ctx) })
}

// Scan extracts all listing drafts currently in the feed and forwards them
// as one batch. A failed bus call drops the batch; the next mutation or
// rescan tick retries naturally.
func (s *Session) Scan(ctx context.Context) {
	html, err := s.driver.FeedHTML(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Feed read failed")
		return
	}

	items := s.extractFeed(html)
	if len(items) == 0 {
		return
	}

	reply, err := s.client.Call(ctx, models.Message{Kind: models.MsgAddItems, Items: items})
	if err != nil {
		s.logger.Warn().Err(err).Int("batch", len(items)).Msg("Dropped capture batch")
		return
	}

	s.logger.Info().
		Int("batch", len(items)).
		Int("total", reply.Total).
		Msg("Captured listings")

	s.crawler.Enqueue(ctx, items)
}

// extractFeed parses the feed markup into deduplicated listing drafts.
func (s *Session) extractFeed(html string) []models.CaptureItem {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		s.logger.Debug().Err(err).Msg("Feed parse failed")
		return nil
	}

	seen := make(map[string]struct{})
	var items []models.CaptureItem
	doc.Find(`a[href*="/maps/place/"]`).Each(func(_ int, anchor *goquery.Selection) {
		item := s.engine.ExtractSummary(anchor)
		if item == nil {
			return
		}
		if _, dup := seen[item.DetailURL]; dup {
			return
		}
		seen[item.DetailURL] = struct{}{}
		items = append(items, *item)
	})
	return items
}

// autoScroll advances the feed to surface more results, up to the
// configured scroll budget or the end-of-list marker.
func (s *Session) autoScroll(ctx context.Context) {
	s.mu.Lock()
	if s.atEnd || (s.cfg.MaxScrolls > 0 && s.scrolls >= s.cfg.MaxScrolls) {
		s.mu.Unlock()
		return
	}
	s.scrolls++
	count := s.scrolls
	s.mu.Unlock()

	atEnd, err := s.driver.ScrollFeed(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Feed scroll failed")
		return
	}
	if atEnd {
		s.mu.Lock()
		s.atEnd = true
		s.mu.Unlock()
		s.logger.Info().Int("scrolls", count).Msg("Reached end of results feed")
	}
}

// setCapturing flips the stored capturing flag. Failures are logged and
// swallowed: the flag is advisory state, not a gate on this session.
func (s *Session) setCapturing(ctx context.Context, capturing bool) {
	_, err := s.client.Call(ctx, models.Message{Kind: models.MsgSetCapturing, Capturing: capturing})
	if err != nil {
		s.logger.Warn().Err(err).Bool("capturing", capturing).Msg("Failed to update capturing flag")
	}
}
