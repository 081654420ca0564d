package notify

import (
	"context"
	"sync"

	"ropa-suggestions/internal/domain/ports/adapter"
	"ropa-suggestions/internal/infra/logging"

	"github.com/rs/zerolog"
)

var _ adapter.Notifier = (*Hub)(nil)

// Hub logs every notification and fans it out to live subscribers, such as
// the websocket stream. Subscribers that fall behind miss notifications.
type Hub struct {
	log *zerolog.Logger

	mu   sync.Mutex
	subs map[uint64]chan adapter.Notification
	next uint64
}

func NewHub(logger *zerolog.Logger) *Hub {
	if logger == nil {
		logger = logging.Nop()
	}
	l := logger.With().Str("component", "Notifier").Logger()
	return &Hub{log: &l, subs: make(map[uint64]chan adapter.Notification)}
}

func (h *Hub) Notify(ctx context.Context, n adapter.Notification) {
	ev := logging.With(ctx, h.log).Info()
	switch n.Level {
	case adapter.NotifyError:
		ev = logging.With(ctx, h.log).Error()
	case adapter.NotifyWarning:
		ev = logging.With(ctx, h.log).Warn()
	}
	ev.Str("level_ui", string(n.Level)).Str("title", n.Title).Strs("details", n.Details).Msg(n.Message)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

func (h *Hub) Subscribe(buffer int) (<-chan adapter.Notification, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan adapter.Notification, buffer)
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
}
