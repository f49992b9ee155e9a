// ABOUTME: AMQP relay propagating change-feed invalidations across server processes
// ABOUTME: Republishes local store notifications to a topic exchange and injects remote ones

package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

const maxDialDelay = 60 * time.Second

// RelayOptions configures the AMQP relay.
type RelayOptions struct {
	URL           string
	Exchange      string
	RetryAttempts int
	RetryDelay    time.Duration
}

// changeEvent is the wire payload for one table invalidation.
type changeEvent struct {
	Table  string    `json:"table"`
	Origin string    `json:"origin"`
	At     time.Time `json:"at"`
}

// Relay connects a local Bridge to an AMQP topic exchange so that multiple
// server processes share one change feed. It implements store.ChangeNotifier:
// local notifications go to the bridge and to the exchange; remote ones
// arriving from other origins are injected into the bridge. Messages carry
// an origin ID so a process ignores its own echoes.
type Relay struct {
	conn     *amqp091.Connection
	ch       *amqp091.Channel
	exchange string
	origin   string
	bridge   *Bridge
	logger   *slog.Logger
	done     chan struct{}
}

// NewRelay dials the broker with exponential backoff and declares the topic
// exchange. The returned relay is not consuming yet; call Start.
func NewRelay(ctx context.Context, opts RelayOptions, bridge *Bridge, logger *slog.Logger) (*Relay, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "feed-relay")

	conn, err := dialWithRetry(ctx, opts, logger)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	if err := ch.ExchangeDeclare(opts.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declaring exchange %s: %w", opts.Exchange, err)
	}

	return &Relay{
		conn:     conn,
		ch:       ch,
		exchange: opts.Exchange,
		origin:   uuid.New().String(),
		bridge:   bridge,
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

// Notify implements store.ChangeNotifier. The local bridge is woken first so
// in-process subscribers never depend on broker health; the AMQP publish is
// best effort and only logged on failure.
func (r *Relay) Notify(table string) {
	r.bridge.Notify(table)

	body, err := json.Marshal(changeEvent{
		Table:  table,
		Origin: r.origin,
		At:     time.Now().UTC(),
	})
	if err != nil {
		r.logger.Error("marshaling change event", "table", table, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = r.ch.PublishWithContext(ctx, r.exchange, "change."+table, false, false,
		amqp091.Publishing{
			ContentType: "application/json",
			MessageId:   uuid.NewString(),
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
	if err != nil {
		r.logger.Error("publishing change event", "table", table, "error", err)
		return
	}
	r.logger.Debug("published change event", "table", table)
}

// Start consumes remote invalidations from a process-private queue bound to
// change.* and injects them into the local bridge. Returns after setup; the
// consume loop runs until Close.
func (r *Relay) Start() error {
	q, err := r.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declaring relay queue: %w", err)
	}
	if err := r.ch.QueueBind(q.Name, "change.*", r.exchange, false, nil); err != nil {
		return fmt.Errorf("binding relay queue: %w", err)
	}

	msgs, err := r.ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consuming relay queue: %w", err)
	}

	go func() {
		for {
			select {
			case <-r.done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				r.handle(msg)
			}
		}
	}()

	r.logger.Info("feed relay started", "exchange", r.exchange, "queue", q.Name)
	return nil
}

func (r *Relay) handle(msg amqp091.Delivery) {
	var ev changeEvent
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		r.logger.Warn("dropping malformed change event", "error", err)
		return
	}
	if ev.Origin == r.origin {
		return
	}
	r.logger.Debug("remote change event", "table", ev.Table, "origin", ev.Origin)
	r.bridge.Notify(ev.Table)
}

// Close stops the consume loop and closes the connection.
func (r *Relay) Close() error {
	close(r.done)
	_ = r.ch.Close()
	return r.conn.Close()
}

// dialWithRetry connects with exponential backoff, respecting ctx for
// graceful shutdown.
func dialWithRetry(ctx context.Context, opts RelayOptions, logger *slog.Logger) (*amqp091.Connection, error) {
	attempts := opts.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		conn, err := amqp091.Dial(opts.URL)
		if err == nil {
			if i > 1 {
				logger.Info("broker connected", "attempt", i)
			}
			return conn, nil
		}
		lastErr = err

		sleep := delay * time.Duration(math.Pow(2, float64(i-1)))
		if sleep > maxDialDelay {
			sleep = maxDialDelay
		}
		logger.Warn("broker dial failed", "attempt", i, "sleep", sleep, "error", err)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("connecting to broker after %d attempts: %w", attempts, lastErr)
}
