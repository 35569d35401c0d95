package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/metrics"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/odrive"
	"go.uber.org/zap"
)

// Well-known consumers.
const (
	ConsumerDashboard = "dashboard"
	ConsumerCharts    = "charts"
)

var (
	ErrTickInProgress = errors.New("previous tick still running")
	ErrStaleTick      = errors.New("tick result discarded")
	ErrInvalidPoller  = errors.New("invalid poller settings")
)

// Poller polls one consumer's path set on its own interval. Ticks never
// overlap; a result that arrives after Stop or a path change is dropped.
type Poller struct {
	consumer string
	sync     *Synchronizer
	streamer *Streamer
	metrics  metrics.Collector
	logger   *zap.Logger

	mu         sync.Mutex
	interval   time.Duration
	paths      []string
	generation uint64
	tick       uint64
	running    bool
	stopChan   chan struct{}
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	busy atomic.Bool
}

func NewPoller(consumer string, interval time.Duration, synchronizer *Synchronizer, streamer *Streamer, collector metrics.Collector, logger *zap.Logger) *Poller {
	if collector == nil {
		collector = metrics.Noop()
	}
	return &Poller{
		consumer: consumer,
		interval: interval,
		sync:     synchronizer,
		streamer: streamer,
		metrics:  collector,
		logger:   logger.With(zap.String("consumer", consumer)),
	}
}

func (p *Poller) Consumer() string { return p.consumer }

func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

func (p *Poller) Paths() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.paths...)
}

// SetPaths replaces the path set. A tick in flight is dropped.
func (p *Poller) SetPaths(paths []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append([]string(nil), paths...)
	p.generation++
}

// Configure changes paths and interval, restarting the loop when the
// interval changed while running.
func (p *Poller) Configure(paths []string, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: interval %s", ErrInvalidPoller, interval)
	}
	p.SetPaths(paths)

	p.mu.Lock()
	changed := interval != p.interval
	running := p.running
	p.interval = interval
	p.mu.Unlock()

	if changed && running {
		p.Stop()
		return p.Start()
	}
	return nil
}

// Start startet das zyklische Polling
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	if p.interval <= 0 {
		return fmt.Errorf("%w: interval %s", ErrInvalidPoller, p.interval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.running = true
	p.cancel = cancel
	p.stopChan = make(chan struct{})
	p.wg.Add(1)

	go p.pollLoop(ctx, p.stopChan, p.interval)

	p.logger.Info("Poller started",
		zap.Duration("interval", p.interval),
		zap.Int("paths", len(p.paths)))

	return nil
}

// Stop stoppt das Polling, laufende Ticks werden verworfen
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.generation++
	p.cancel()
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()

	p.logger.Info("Poller stopped")
}

func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) pollLoop(ctx context.Context, stop <-chan struct{}, interval time.Duration) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, interval)
			if err := p.Tick(tickCtx); err != nil && !errors.Is(err, ErrStaleTick) {
				p.logger.Debug("Poll tick failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// Tick runs one poll. It is called by the loop and may be called directly.
func (p *Poller) Tick(ctx context.Context) error {
	if !p.busy.CompareAndSwap(false, true) {
		p.metrics.IncTelemetryTick(p.consumer, metrics.OutcomeDropped)
		return ErrTickInProgress
	}
	defer p.busy.Store(false)

	p.mu.Lock()
	gen := p.generation
	p.tick++
	id := p.tick
	paths := append([]string(nil), p.paths...)
	p.mu.Unlock()

	if len(paths) == 0 {
		return nil
	}

	fetch := p.sync.Fetch
	if p.consumer == ConsumerCharts {
		fetch = p.sync.FetchCharts
	}
	snapshot, err := fetch(ctx, paths)
	if errors.Is(err, odrive.ErrNotConnected) {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.generation {
		p.metrics.IncTelemetryTick(p.consumer, metrics.OutcomeDropped)
		return ErrStaleTick
	}
	if err != nil {
		p.metrics.IncTelemetryTick(p.consumer, metrics.OutcomeFailed)
		p.logger.Warn("Telemetry poll failed",
			zap.Uint64("tick", id),
			zap.Error(err))
		return err
	}

	p.sync.Store().Apply(snapshot)
	p.metrics.IncTelemetryTick(p.consumer, metrics.OutcomeOK)

	if p.streamer != nil {
		p.streamer.Publish(&Update{
			Consumer:  p.consumer,
			Tick:      id,
			Values:    snapshot,
			Timestamp: time.Now().UTC(),
		})
	}
	return nil
}
