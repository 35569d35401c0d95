package telemetry

import (
	"sync"
	"time"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/types"
	"github.com/google/uuid"
)

const subscriberBuffer = 16

// Update is the result of one successful polling tick.
type Update struct {
	Consumer  string                  `json:"consumer"`
	Tick      uint64                  `json:"tick"`
	Values    types.TelemetrySnapshot `json:"values"`
	Timestamp time.Time               `json:"timestamp"`
}

type subscription struct {
	consumer string
	ch       chan *Update
}

// Streamer fans polling updates out to subscribers. Subscribing to the
// empty consumer receives every update.
type Streamer struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]subscription
}

func NewStreamer() *Streamer {
	return &Streamer{
		subscribers: make(map[uuid.UUID]subscription),
	}
}

func (s *Streamer) Subscribe(consumer string) (uuid.UUID, <-chan *Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New()
	ch := make(chan *Update, subscriberBuffer)
	s.subscribers[id] = subscription{consumer: consumer, ch: ch}
	return id, ch
}

func (s *Streamer) Unsubscribe(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, ok := s.subscribers[id]; ok {
		delete(s.subscribers, id)
		close(sub.ch)
	}
}

// Publish never blocks, slow subscribers miss updates.
func (s *Streamer) Publish(u *Update) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dropped := 0
	for _, sub := range s.subscribers {
		if sub.consumer != "" && sub.consumer != u.Consumer {
			continue
		}
		select {
		case sub.ch <- u:
		default:
			dropped++
		}
	}
	return dropped
}

func (s *Streamer) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
