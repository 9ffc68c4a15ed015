// -----------------------------------------------------------------------
// Detail crawler - visits listings to recover address/phone/website
// -----------------------------------------------------------------------

package capture

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
	"github.com/ternarybob/prospector/internal/services/extract"
)

const minDetailThrottle = time.Second

// Crawler walks the queued listings one at a time, opening each detail page
// and merging the richer fields back through the bus. A reentrancy guard
// keeps at most one crawl loop alive; Enqueue while a loop runs just grows
// the queue.
type Crawler struct {
	driver PageDriver
	engine *extract.Engine
	client interfaces.BusClient
	sched  Scheduler
	logger arbor.ILogger
	cfg    common.CaptureConfig

	running atomic.Bool

	mu        sync.Mutex
	queue     []models.CaptureItem
	processed map[string]struct{}
	homeURL   string
}

// NewCrawler creates an idle crawler.
func NewCrawler(driver PageDriver, engine *extract.Engine, client interfaces.BusClient, sched Scheduler, cfg common.CaptureConfig, logger arbor.ILogger) *Crawler {
	return &Crawler{
		driver:    driver,
		engine:    engine,
		client:    client,
		sched:     sched,
		logger:    logger,
		cfg:       cfg,
		processed: make(map[string]struct{}),
	}
}

// SetHomeURL records the search URL to return to after the queue drains, so
// the session's feed keeps rendering new results.
func (c *Crawler) SetHomeURL(url string) {
	c.mu.Lock()
	c.homeURL = url
	c.mu.Unlock()
}

// Enqueue adds unvisited listings to the crawl queue and starts the loop if
// it is idle. The processed set is keyed by place key, so the same listing
// re-rendered under a different viewport URL is not visited twice. Listings
// already visited this run are skipped regardless of outcome: a listing
// whose panel yielded nothing is not retried.
func (c *Crawler) Enqueue(ctx context.Context, items []models.CaptureItem) {
	c.mu.Lock()
	queued := 0
	for _, item := range items {
		if item.DetailURL == "" {
			continue
		}
		key := item.Key()
		if _, done := c.processed[key]; done {
			continue
		}
		c.processed[key] = struct{}{}
		c.queue = append(c.queue, item)
		queued++
	}
	c.mu.Unlock()

	if queued == 0 {
		return
	}
	c.logger.Debug().Int("queued", queued).Msg("Listings queued for detail crawl")

	if c.running.CompareAndSwap(false, true) {
		go c.drain(ctx)
	}
}

// Pending returns the current queue depth.
func (c *Crawler) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Crawler) drain(ctx context.Context) {
	defer c.running.Store(false)

	throttle := common.ParseDuration(c.cfg.DetailThrottle, 3*time.Second)
	if throttle < minDetailThrottle {
		throttle = minDetailThrottle
	}

	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			home := c.homeURL
			c.mu.Unlock()
			c.returnHome(ctx, home)
			return
		}
		item := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		c.visit(ctx, item)

		if err := c.sched.Sleep(ctx, throttle); err != nil {
			return
		}
	}
}

// visit opens one listing, waits for the detail panel, and forwards the
// merged draft. An extraction miss stores a debug snapshot; the visit is
// recorded either way.
func (c *Crawler) visit(ctx context.Context, item models.CaptureItem) {
	if err := c.driver.Navigate(ctx, item.DetailURL); err != nil {
		c.logger.Warn().Err(err).Str("url", item.DetailURL).Msg("Detail navigation failed")
		return
	}

	html, err := c.awaitPanel(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Str("name", item.Name).Msg("Detail panel poll failed")
		return
	}
	if html == "" {
		c.logger.Debug().Str("name", item.Name).Msg("Detail panel never rendered")
	}

	// Extraction runs on whatever rendered, timeout included; a miss
	// produces the diagnostic snapshot either way.
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		c.logger.Debug().Err(err).Msg("Detail parse failed")
		return
	}

	fields := c.engine.ExtractDetail(doc)
	if fields.Empty() {
		c.reportMiss(ctx, doc)
	}

	if fields.Address != "" {
		item.Address = fields.Address
	}
	if fields.Phone != "" {
		item.Phone = fields.Phone
	}
	if fields.Website != "" {
		item.Website = fields.Website
	}
	// The visit itself advances collected_at, extraction miss included.
	item.CollectedAt = time.Now()

	_, err = c.client.Call(ctx, models.Message{Kind: models.MsgAddItems, Items: []models.CaptureItem{item}})
	if err != nil {
		c.logger.Warn().Err(err).Str("name", item.Name).Msg("Dropped detail update")
		return
	}
	if fields.Empty() {
		c.logger.Debug().Str("name", item.Name).Msg("Visit recorded without detail fields")
		return
	}
	c.logger.Info().
		Str("name", item.Name).
		Bool("address", fields.Address != "").
		Bool("phone", fields.Phone != "").
		Bool("website", fields.Website != "").
		Msg("Detail captured")
}

// awaitPanel polls for the detail panel until it renders or the timeout
// elapses.
func (c *Crawler) awaitPanel(ctx context.Context) (string, error) {
	timeout := common.ParseDuration(c.cfg.DetailTimeout, 10*time.Second)
	poll := common.ParseDuration(c.cfg.PollInterval, 250*time.Millisecond)
	deadline := time.Now().Add(timeout)

	for {
		html, err := c.driver.DetailHTML(ctx)
		if err != nil {
			return "", err
		}
		if html != "" {
			return html, nil
		}
		if time.Now().After(deadline) {
			return "", nil
		}
		if err := c.sched.Sleep(ctx, poll); err != nil {
			return "", err
		}
	}
}

// reportMiss stores a panel snapshot so selector strategies can be fixed
// against real markup.
func (c *Crawler) reportMiss(ctx context.Context, doc *goquery.Document) {
	title, _ := c.driver.PageTitle(ctx)
	snap := c.engine.BuildDebugSnapshot(common.NewSnapshotID(), doc, title)

	_, err := c.client.Call(ctx, models.Message{Kind: models.MsgPanelDebug, Debug: snap})
	if err != nil {
		c.logger.Warn().Err(err).Msg("Dropped panel snapshot")
		return
	}
	c.logger.Warn().Str("title", title).Msg("Detail extraction missed; snapshot stored")
}

func (c *Crawler) returnHome(ctx context.Context, home string) {
	if home == "" {
		return
	}
	current, err := c.driver.CurrentURL(ctx)
	if err == nil && current == home {
		return
	}
	if err := c.driver.Navigate(ctx, home); err != nil {
		c.logger.Debug().Err(err).Msg("Return to results failed")
		return
	}
	if err := c.driver.InstallMutationObserver(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("Observer reinstall failed")
	}
}
