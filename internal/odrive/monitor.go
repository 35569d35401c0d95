package odrive

import (
	"context"
	"sync"
	"time"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/metrics"
	"go.uber.org/zap"
)

// StatusFunc is called after every status refresh.
type StatusFunc func(ctx context.Context, st Status, err error)

// Monitor refreshes the connection status on a fixed interval.
type Monitor struct {
	client   *Client
	interval time.Duration
	metrics  metrics.Collector
	logger   *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex

	hooks []StatusFunc
}

func NewMonitor(client *Client, interval time.Duration, collector metrics.Collector, logger *zap.Logger) *Monitor {
	if collector == nil {
		collector = metrics.Noop()
	}
	return &Monitor{
		client:   client,
		interval: interval,
		metrics:  collector,
		logger:   logger,
	}
}

// OnStatus registers a hook. Hooks must be registered before Start.
func (m *Monitor) OnStatus(fn StatusFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Start startet die zyklische Statusabfrage
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	m.running = true
	m.stopChan = make(chan struct{})
	m.wg.Add(1)

	go m.loop(m.stopChan)

	m.logger.Info("Status monitor started", zap.Duration("interval", m.interval))
	return nil
}

// Stop stoppt die Statusabfrage
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("Status monitor stopped")
}

func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) loop(stop <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.Refresh(context.Background())
		}
	}
}

// Refresh runs one status refresh and the registered hooks.
func (m *Monitor) Refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	wasConnected := m.client.IsConnected()
	st, err := m.client.Status(ctx)
	if err != nil {
		m.logger.Warn("Status refresh failed", zap.Error(err))
	} else {
		m.metrics.SetConnected(st.Connected)
		if wasConnected != st.Connected {
			m.logger.Info("Connection state changed",
				zap.Bool("connected", st.Connected),
				zap.Bool("connection_lost", st.ConnectionLost),
				zap.String("serial", st.DeviceSerial))
		}
	}

	m.mu.Lock()
	hooks := append([]StatusFunc(nil), m.hooks...)
	m.mu.Unlock()

	for _, fn := range hooks {
		fn(ctx, st, err)
	}
}
