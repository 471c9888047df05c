package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// ChangeChannel is the NOTIFY channel the records trigger publishes "<entity>:<id>" on
const ChangeChannel = "eddy_record_changes"

// Invalidator evicts cached principals
type Invalidator interface {
	Invalidate(ctx context.Context, id int64)
	InvalidateAll(ctx context.Context)
}

// PrincipalInvalidator keeps principal caches consistent across instances.
// It uses PostgreSQL LISTEN/NOTIFY to evict a principal whenever its record is
// updated or deleted by any instance.
type PrincipalInvalidator struct {
	mu       sync.Mutex
	entity   string
	target   Invalidator
	connStr  string
	listener *pq.Listener
	logger   *zap.Logger
	stopCh   chan struct{}
	done     chan struct{}
	stopped  bool

	pingInterval time.Duration
}

// NewPrincipalInvalidator creates a new PrincipalInvalidator.
// connStr is the PostgreSQL connection string for LISTEN/NOTIFY.
// entity is the name of the principal entity.
func NewPrincipalInvalidator(connStr, entity string, target Invalidator, logger *zap.Logger) *PrincipalInvalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrincipalInvalidator{
		entity:       entity,
		target:       target,
		connStr:      connStr,
		logger:       logger,
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
		pingInterval: 90 * time.Second,
	}
}

// Start starts listening for record changes
func (m *PrincipalInvalidator) Start(ctx context.Context) error {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			m.logger.Warn("principal invalidator listener error", zap.Error(err))
		}
	}

	m.listener = pq.NewListener(m.connStr, 10*time.Second, time.Minute, reportProblem)
	if err := m.listener.Listen(ChangeChannel); err != nil {
		m.listener.Close()
		return fmt.Errorf("failed to listen on %s: %w", ChangeChannel, err)
	}

	go m.run(ctx, m.listener.Notify, m.listener.Ping)
	return nil
}

// Stop stops listening and waits for the notification loop to exit
func (m *PrincipalInvalidator) Stop() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	close(m.stopCh)
	m.mu.Unlock()

	if m.listener == nil {
		return nil
	}
	<-m.done
	return m.listener.Close()
}

// run processes notifications until Stop is called
func (m *PrincipalInvalidator) run(ctx context.Context, notify <-chan *pq.Notification, ping func() error) {
	defer close(m.done)
	for {
		select {
		case <-m.stopCh:
			return
		case n := <-notify:
			m.handle(ctx, n)
		case <-time.After(m.pingInterval):
			// Keep the connection alive
			go func() {
				if err := ping(); err != nil {
					m.logger.Warn("principal invalidator ping failed", zap.Error(err))
				}
			}()
		}
	}
}

// handle evicts the principal named by one notification.
// A nil notification means the connection was re-established and events may have been missed.
func (m *PrincipalInvalidator) handle(ctx context.Context, n *pq.Notification) {
	if n == nil {
		m.logger.Info("listener reconnected, clearing principal cache")
		m.target.InvalidateAll(ctx)
		return
	}

	entity, rawID, ok := strings.Cut(n.Extra, ":")
	if !ok {
		m.logger.Warn("malformed record change payload", zap.String("payload", n.Extra))
		return
	}
	if entity != m.entity {
		return
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		m.logger.Warn("malformed record change payload", zap.String("payload", n.Extra))
		return
	}
	m.logger.Debug("principal changed, evicting", zap.Int64("id", id))
	m.target.Invalidate(ctx, id)
}
