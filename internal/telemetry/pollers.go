package telemetry

import (
	"sort"
	"sync"
	"time"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/metrics"
	"go.uber.org/zap"
)

// ConsumerInfo describes one running poller.
type ConsumerInfo struct {
	Consumer string        `json:"consumer"`
	Interval time.Duration `json:"interval"`
	Paths    []string      `json:"paths"`
	Running  bool          `json:"running"`
}

// Pollers keeps one independent poller per consumer.
type Pollers struct {
	sync     *Synchronizer
	streamer *Streamer
	metrics  metrics.Collector
	logger   *zap.Logger

	mu      sync.Mutex
	pollers map[string]*Poller
}

func NewPollers(synchronizer *Synchronizer, streamer *Streamer, collector metrics.Collector, logger *zap.Logger) *Pollers {
	return &Pollers{
		sync:     synchronizer,
		streamer: streamer,
		metrics:  collector,
		logger:   logger,
		pollers:  make(map[string]*Poller),
	}
}

// Configure creates or updates the consumer's poller and starts it.
func (ps *Pollers) Configure(consumer string, paths []string, interval time.Duration) (*Poller, error) {
	ps.mu.Lock()
	p, ok := ps.pollers[consumer]
	if !ok {
		p = NewPoller(consumer, interval, ps.sync, ps.streamer, ps.metrics, ps.logger)
		ps.pollers[consumer] = p
	}
	ps.mu.Unlock()

	if err := p.Configure(paths, interval); err != nil {
		return nil, err
	}
	if err := p.Start(); err != nil {
		return nil, err
	}
	return p, nil
}

func (ps *Pollers) Get(consumer string) (*Poller, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	p, ok := ps.pollers[consumer]
	return p, ok
}

// Remove stops and forgets a consumer.
func (ps *Pollers) Remove(consumer string) bool {
	ps.mu.Lock()
	p, ok := ps.pollers[consumer]
	delete(ps.pollers, consumer)
	ps.mu.Unlock()

	if ok {
		p.Stop()
	}
	return ok
}

// ResetPaths clears every path set, e.g. after a firmware family switch.
func (ps *Pollers) ResetPaths(paths func(consumer string) []string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for name, p := range ps.pollers {
		p.SetPaths(paths(name))
	}
}

func (ps *Pollers) StopAll() {
	ps.mu.Lock()
	list := make([]*Poller, 0, len(ps.pollers))
	for _, p := range ps.pollers {
		list = append(list, p)
	}
	ps.mu.Unlock()

	for _, p := range list {
		p.Stop()
	}
}

func (ps *Pollers) List() []ConsumerInfo {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	out := make([]ConsumerInfo, 0, len(ps.pollers))
	for name, p := range ps.pollers {
		out = append(out, ConsumerInfo{
			Consumer: name,
			Interval: p.Interval(),
			Paths:    p.Paths(),
			Running:  p.IsRunning(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Consumer < out[j].Consumer })
	return out
}
