package blockchain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ChangeHandler is called with the address whose on-chain state changed
type ChangeHandler func(address string)

// AccountWatcher reports account state changes. Watch returns once the watch is
// registered; notifications continue until ctx is cancelled.
type AccountWatcher interface {
	Watch(ctx context.Context, address string, onChange ChangeHandler) error
}

// SubscriptionWatcher pushes changes from a websocket accountSubscribe stream.
// The websocket client does not redial on its own, so when the connection
// drops the watcher dials a new one and resubscribes every registered address.
type SubscriptionWatcher struct {
	url     string
	log     *zap.Logger
	backoff time.Duration
	dial    func(ctx context.Context, url string) (*ws.Client, error)

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	client       *ws.Client
	generation   int
	reconnecting bool
	watches      map[string]*subscriptionWatch
}

type subscriptionWatch struct {
	ctx      context.Context
	pubKey   solana.PublicKey
	onChange ChangeHandler
	// generation of the connection this watch is subscribed on, -1 while unsubscribed
	generation int
}

// NewSubscriptionWatcher dials the websocket endpoint. Reconnects stop when ctx is cancelled.
func NewSubscriptionWatcher(ctx context.Context, wsURL string, log *zap.Logger) (*SubscriptionWatcher, error) {
	return newSubscriptionWatcher(ctx, wsURL, 2*time.Second, log)
}

func newSubscriptionWatcher(ctx context.Context, wsURL string, backoff time.Duration, log *zap.Logger) (*SubscriptionWatcher, error) {
	client, err := ws.Connect(ctx, wsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect websocket: %w", err)
	}
	runCtx, cancel := context.WithCancel(ctx)
	return &SubscriptionWatcher{
		url:     wsURL,
		log:     log.Named("subscription_watcher"),
		backoff: backoff,
		dial:    ws.Connect,
		ctx:     runCtx,
		cancel:  cancel,
		client:  client,
		watches: make(map[string]*subscriptionWatch),
	}, nil
}

func (w *SubscriptionWatcher) Watch(ctx context.Context, address string, onChange ChangeHandler) error {
	pubKey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}

	watch := &subscriptionWatch{ctx: ctx, pubKey: pubKey, onChange: onChange, generation: -1}

	w.mu.Lock()
	w.watches[address] = watch
	if w.reconnecting {
		// picked up once the new connection is up
		w.mu.Unlock()
		return nil
	}
	client, generation := w.client, w.generation
	w.mu.Unlock()

	if err := w.subscribe(client, generation, watch); err != nil {
		w.forget(address, watch)
		return err
	}
	return nil
}

func (w *SubscriptionWatcher) subscribe(client *ws.Client, generation int, watch *subscriptionWatch) error {
	sub, err := client.AccountSubscribe(watch.pubKey, rpc.CommitmentConfirmed)
	if err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", watch.pubKey, err)
	}

	w.mu.Lock()
	watch.generation = generation
	w.mu.Unlock()

	go w.receive(generation, watch, sub)
	return nil
}

func (w *SubscriptionWatcher) receive(generation int, watch *subscriptionWatch, sub *ws.AccountSubscription) {
	address := watch.pubKey.String()
	for {
		_, err := sub.Recv(watch.ctx)
		if err == nil {
			watch.onChange(address)
			continue
		}

		sub.Unsubscribe()
		if watch.ctx.Err() != nil {
			w.forget(address, watch)
			return
		}

		w.log.Warn("account subscription dropped", zap.String("address", address), zap.Error(err))
		w.reconnect(generation)
		return
	}
}

func (w *SubscriptionWatcher) forget(address string, watch *subscriptionWatch) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watches[address] == watch {
		delete(w.watches, address)
	}
}

// reconnect replaces the connection of the given generation. Errors from an
// older connection, or a reconnect already in flight, are ignored.
func (w *SubscriptionWatcher) reconnect(generation int) {
	w.mu.Lock()
	if generation != w.generation || w.reconnecting {
		w.mu.Unlock()
		return
	}
	w.reconnecting = true
	old := w.client
	w.mu.Unlock()

	old.Close()

	for attempt := 1; ; attempt++ {
		select {
		case <-w.ctx.Done():
			return
		case <-time.After(w.backoff):
		}

		client, err := w.dial(w.ctx, w.url)
		if err != nil {
			w.log.Warn("websocket redial failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		w.mu.Lock()
		w.client = client
		w.generation++
		current := w.generation
		w.mu.Unlock()

		resubscribed, err := w.resubscribe(client, current)
		if err != nil {
			w.log.Warn("resubscribe failed, redialing", zap.Int("attempt", attempt), zap.Error(err))
			client.Close()
			continue
		}

		w.log.Info("websocket reconnected", zap.Int("attempt", attempt), zap.Int("subscriptions", len(resubscribed)))
		// changes during the gap are unknown, so report one per address
		for _, watch := range resubscribed {
			watch.onChange(watch.pubKey.String())
		}
		return
	}
}

// resubscribe subscribes every live watch not yet on the current connection,
// and clears the reconnecting flag once none are left.
func (w *SubscriptionWatcher) resubscribe(client *ws.Client, generation int) ([]*subscriptionWatch, error) {
	var done []*subscriptionWatch
	for {
		w.mu.Lock()
		var pending []*subscriptionWatch
		for address, watch := range w.watches {
			if watch.ctx.Err() != nil {
				delete(w.watches, address)
				continue
			}
			if watch.generation != generation {
				pending = append(pending, watch)
			}
		}
		if len(pending) == 0 {
			w.reconnecting = false
			w.mu.Unlock()
			return done, nil
		}
		w.mu.Unlock()

		for _, watch := range pending {
			if err := w.subscribe(client, generation, watch); err != nil {
				return nil, err
			}
			done = append(done, watch)
		}
	}
}

// Close stops reconnecting and tears down the websocket connection
func (w *SubscriptionWatcher) Close() {
	w.cancel()
	w.mu.Lock()
	client := w.client
	w.mu.Unlock()
	client.Close()
}

// FingerprintReader reads a value that changes whenever an account changes
type FingerprintReader interface {
	AccountFingerprint(ctx context.Context, address string) (string, error)
}

// PollingWatcher detects changes by periodically fingerprinting each account.
// All watched addresses share one rate limiter.
type PollingWatcher struct {
	reader   FingerprintReader
	interval time.Duration
	limiter  *rate.Limiter
	log      *zap.Logger
}

// NewPollingWatcher creates a poller; ratePerSecond 0 disables limiting
func NewPollingWatcher(reader FingerprintReader, interval time.Duration, ratePerSecond float64, log *zap.Logger) *PollingWatcher {
	w := &PollingWatcher{
		reader:   reader,
		interval: interval,
		log:      log.Named("polling_watcher"),
	}
	if ratePerSecond > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	return w
}

func (w *PollingWatcher) Watch(ctx context.Context, address string, onChange ChangeHandler) error {
	if !ValidateWalletAddress(address) {
		return fmt.Errorf("invalid address: %s", address)
	}
	go w.poll(ctx, address, onChange)
	return nil
}

func (w *PollingWatcher) poll(ctx context.Context, address string, onChange ChangeHandler) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var last string
	var seen bool

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return
			}
		}

		fingerprint, err := w.reader.AccountFingerprint(ctx, address)
		if err != nil {
			if ctx.Err() == nil {
				w.log.Warn("account poll failed", zap.String("address", address), zap.Error(err))
			}
			continue
		}

		// first observation is the baseline
		if seen && fingerprint != last {
			onChange(address)
		}
		last = fingerprint
		seen = true
	}
}

// WatchGroup remembers which addresses are already watched so repeated Track
// calls do not stack duplicate subscriptions.
type WatchGroup struct {
	watcher AccountWatcher

	mu      sync.Mutex
	watched map[string]bool
}

func NewWatchGroup(watcher AccountWatcher) *WatchGroup {
	return &WatchGroup{watcher: watcher, watched: make(map[string]bool)}
}

// Watch registers address once; later calls for the same address are no-ops
func (g *WatchGroup) Watch(ctx context.Context, address string, onChange ChangeHandler) error {
	g.mu.Lock()
	if g.watched[address] {
		g.mu.Unlock()
		return nil
	}
	g.watched[address] = true
	g.mu.Unlock()

	if err := g.watcher.Watch(ctx, address, onChange); err != nil {
		g.mu.Lock()
		delete(g.watched, address)
		g.mu.Unlock()
		return err
	}
	return nil
}

// Len returns the number of watched addresses
func (g *WatchGroup) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.watched)
}
