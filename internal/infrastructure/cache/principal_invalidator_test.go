package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
)

type recordingInvalidator struct {
	mu    sync.Mutex
	ids   []int64
	clear int
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

func (r *recordingInvalidator) InvalidateAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clear++
}

func (r *recordingInvalidator) snapshot() ([]int64, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.ids...), r.clear
}

func TestPrincipalInvalidator_Handle(t *testing.T) {
	tests := []struct {
		name      string
		n         *pq.Notification
		wantIDs   []int64
		wantClear int
	}{
		{name: "principal change", n: &pq.Notification{Extra: "user:42"}, wantIDs: []int64{42}},
		{name: "other entity", n: &pq.Notification{Extra: "project:42"}},
		{name: "missing separator", n: &pq.Notification{Extra: "user42"}},
		{name: "bad id", n: &pq.Notification{Extra: "user:abc"}},
		{name: "reconnect", n: nil, wantClear: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := &recordingInvalidator{}
			m := NewPrincipalInvalidator("", "user", target, nil)
			m.handle(context.Background(), tt.n)

			ids, clear := target.snapshot()
			if len(ids) != len(tt.wantIDs) {
				t.Fatalf("invalidated %v, want %v", ids, tt.wantIDs)
			}
			for i := range ids {
				if ids[i] != tt.wantIDs[i] {
					t.Errorf("invalidated %v, want %v", ids, tt.wantIDs)
				}
			}
			if clear != tt.wantClear {
				t.Errorf("InvalidateAll calls = %d, want %d", clear, tt.wantClear)
			}
		})
	}
}

func TestPrincipalInvalidator_Run(t *testing.T) {
	target := &recordingInvalidator{}
	m := NewPrincipalInvalidator("", "user", target, nil)
	m.pingInterval = time.Millisecond

	notify := make(chan *pq.Notification)
	pinged := make(chan struct{}, 1)
	ping := func() error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return errors.New("ping ignored")
	}
	go m.run(context.Background(), notify, ping)

	notify <- &pq.Notification{Extra: "user:1"}
	notify <- &pq.Notification{Extra: "user:2"}

	select {
	case <-pinged:
	case <-time.After(time.Second):
		t.Error("expected keepalive ping")
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	<-m.done

	ids, _ := target.snapshot()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("invalidated %v, want [1 2]", ids)
	}

	// Stop is idempotent
	if err := m.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}
