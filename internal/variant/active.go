package variant

import (
	"sync"

	"go.uber.org/zap"
)

// ChangeFunc is notified after the active family changed.
type ChangeFunc func(b *Bundle)

// Active tracks the family the gateway currently talks to.
type Active struct {
	selector  *Selector
	mu        sync.RWMutex
	current   *Bundle
	listeners []ChangeFunc
	logger    *zap.Logger
}

func NewActive(selector *Selector, family FirmwareFamily, logger *zap.Logger) (*Active, error) {
	b, err := selector.Bundle(family)
	if err != nil {
		return nil, err
	}
	return &Active{selector: selector, current: b, logger: logger}, nil
}

func (a *Active) Bundle() *Bundle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

func (a *Active) Family() FirmwareFamily {
	return a.Bundle().Family
}

// OnChange registers a listener. Listeners run synchronously in
// registration order.
func (a *Active) OnChange(fn ChangeFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// Set switches the family. Switching to the active family is a no-op.
func (a *Active) Set(family FirmwareFamily) (*Bundle, error) {
	b, err := a.selector.Bundle(family)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	if a.current == b {
		a.mu.Unlock()
		return b, nil
	}
	previous := a.current.Family
	a.current = b
	listeners := append([]ChangeFunc(nil), a.listeners...)
	a.mu.Unlock()

	a.logger.Info("Firmware family changed",
		zap.String("from", string(previous)),
		zap.String("to", string(family)))

	for _, fn := range listeners {
		fn(b)
	}
	return b, nil
}
