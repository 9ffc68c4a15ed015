package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

// DefaultCallTimeout bounds a capture-side round trip. A capture scan that
// cannot reach the background context within this window drops its batch and
// retries on the next cycle.
const DefaultCallTimeout = 5 * time.Second

type request struct {
	msg   models.Message
	reply chan models.Reply
}

// Bus is the asynchronous boundary between the capture context and the
// background context. A single dispatch goroutine drains the request channel
// and feeds each message to the handler, so background operations are
// serialized: no caller can observe a partially-merged batch.
type Bus struct {
	handler  interfaces.MessageHandler
	logger   arbor.ILogger
	requests chan request

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// New creates a Bus backed by the given handler.
func New(handler interfaces.MessageHandler, logger arbor.ILogger) *Bus {
	return &Bus{
		handler:  handler,
		logger:   logger,
		requests: make(chan request, 64),
	}
}

// Start launches the background dispatch loop. It runs until ctx is
// cancelled or Stop is called.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return fmt.Errorf("bus already started")
	}
	b.started = true
	b.done = make(chan struct{})

	go b.dispatch(ctx)
	b.logger.Debug().Msg("Message bus started")
	return nil
}

func (b *Bus) dispatch(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-b.requests:
			reply := b.handle(ctx, req.msg)
			req.reply <- reply
		}
	}
}

// handle runs one message, converting a handler panic into an error reply so
// a single bad message cannot take the dispatch loop down.
func (b *Bus) handle(ctx context.Context, msg models.Message) (reply models.Reply) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Str("kind", string(msg.Kind)).Msgf("Message handler panicked: %v", r)
			reply = models.Reply{Err: fmt.Sprintf("handler panic: %v", r)}
		}
	}()
	return b.handler.Handle(ctx, msg)
}

// Stop waits for the dispatch loop to drain after its context is cancelled.
func (b *Bus) Stop() {
	b.mu.Lock()
	done := b.done
	b.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Client returns a capture-side client for this bus.
func (b *Bus) Client() interfaces.BusClient {
	return &client{bus: b, timeout: DefaultCallTimeout}
}

// client implements the fallible-RPC view of the bus. Failed calls return an
// error and are not retried here; the caller's next natural cycle retries.
type client struct {
	bus     *Bus
	timeout time.Duration
}

// Call sends one message and waits for its reply.
func (c *client) Call(ctx context.Context, msg models.Message) (models.Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := request{msg: msg, reply: make(chan models.Reply, 1)}

	select {
	case c.bus.requests <- req:
	case <-ctx.Done():
		return models.Reply{}, fmt.Errorf("background context unreachable: %w", ctx.Err())
	}

	select {
	case reply := <-req.reply:
		if reply.Err != "" {
			return reply, fmt.Errorf("background error: %s", reply.Err)
		}
		return reply, nil
	case <-ctx.Done():
		return models.Reply{}, fmt.Errorf("background reply timed out: %w", ctx.Err())
	}
}
