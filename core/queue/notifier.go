package queue

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"queuesync/config"
	"queuesync/logger"
)

// ChangeNotifier carries queue change events between instances over a Redis
// pub/sub channel. The payload is the bare user DID. Delivery is best-effort:
// a lost message costs bounded staleness on other instances, never
// correctness, so publish and subscription faults are logged and swallowed.
type ChangeNotifier struct {
	client        *redis.Client
	channel       string
	retryDelay    time.Duration
	maxRetryDelay time.Duration
	liveness      time.Duration

	mu       sync.Mutex
	handlers []func(did string)
	healthy  bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewChangeNotifier creates a notifier over the given Redis client.
func NewChangeNotifier(client *redis.Client, cfg *config.Config) *ChangeNotifier {
	return &ChangeNotifier{
		client:        client,
		channel:       cfg.QueueChannel,
		retryDelay:    cfg.NotifierRetryDelay,
		maxRetryDelay: cfg.NotifierMaxRetryDelay,
		liveness:      cfg.NotifierLiveness,
	}
}

// OnChange registers a handler invoked for every received change event,
// including events this instance published itself. Handlers must be cheap
// and non-blocking; they run on the subscription goroutine.
func (n *ChangeNotifier) OnChange(fn func(did string)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers = append(n.handlers, fn)
}

// publishTimeout bounds how long a change publish may hold up a write path.
const publishTimeout = time.Second

// Publish emits a change event for the given user. Failures never propagate
// to the write path that triggered them, but they do degrade the health
// signal: a broker that won't take publishes isn't delivering to subscribers
// either.
func (n *ChangeNotifier) Publish(ctx context.Context, did string) {
	if n.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := n.client.Publish(ctx, n.channel, did).Err(); err != nil {
		n.setHealthy(false)
		logger.Warn("failed to publish queue change event",
			logger.String("did", did),
			logger.ErrorField(err))
	}
}

// Healthy reports whether change delivery is currently trusted: the
// subscription is established and the last publish attempt succeeded. While
// false, cross-instance invalidation is not happening and staleness may
// exceed the cache TTL until the connection recovers.
func (n *ChangeNotifier) Healthy() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.healthy
}

// Start launches the subscription run loop.
func (n *ChangeNotifier) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.done = make(chan struct{})
	go n.run(ctx)
}

// Shutdown stops the run loop and waits for it to exit.
func (n *ChangeNotifier) Shutdown() {
	if n.cancel == nil {
		return
	}
	n.cancel()
	<-n.done
}

func (n *ChangeNotifier) run(ctx context.Context) {
	defer close(n.done)

	delay := n.retryDelay
	for {
		sub := n.client.Subscribe(ctx, n.channel)

		// Wait for the subscription confirmation before trusting the channel.
		if _, err := sub.Receive(ctx); err != nil {
			sub.Close()
			if ctx.Err() != nil {
				return
			}
			logger.Warn("queue change subscription failed",
				logger.String("channel", n.channel),
				logger.Duration("retryIn", delay),
				logger.ErrorField(err))
			n.setHealthy(false)
			if !sleepCtx(ctx, delay) {
				return
			}
			delay = nextDelay(delay, n.maxRetryDelay)
			continue
		}

		n.setHealthy(true)
		delay = n.retryDelay
		logger.Info("queue change subscription established",
			logger.String("channel", n.channel))

		n.consume(ctx, sub)
		sub.Close()

		if ctx.Err() != nil {
			return
		}
		n.setHealthy(false)
		if !sleepCtx(ctx, delay) {
			return
		}
		delay = nextDelay(delay, n.maxRetryDelay)
	}
}

// consume receives change events until the subscription breaks or the
// context is cancelled. A periodic ping detects zombie connections that
// never deliver an error.
func (n *ChangeNotifier) consume(ctx context.Context, sub *redis.PubSub) {
	ch := sub.Channel()
	ticker := time.NewTicker(n.liveness)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				logger.Warn("queue change subscription closed",
					logger.String("channel", n.channel))
				return
			}
			n.dispatch(msg.Payload)
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := sub.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warn("queue change subscription liveness check failed",
					logger.String("channel", n.channel),
					logger.ErrorField(err))
				return
			}
		}
	}
}

// dispatch fans a received event out to the registered handlers.
func (n *ChangeNotifier) dispatch(did string) {
	if did == "" {
		return
	}
	n.mu.Lock()
	handlers := make([]func(string), len(n.handlers))
	copy(handlers, n.handlers)
	n.mu.Unlock()

	logger.Debug("received queue change event", logger.String("did", did))
	for _, fn := range handlers {
		fn(did)
	}
}

func (n *ChangeNotifier) setHealthy(v bool) {
	n.mu.Lock()
	n.healthy = v
	n.mu.Unlock()
}

// sleepCtx sleeps for d unless the context is cancelled first. Returns false
// on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// nextDelay doubles the reconnect delay up to the configured cap.
func nextDelay(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}
