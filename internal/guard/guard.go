// Package guard gates risky device actions behind an idle check of every
// axis.
package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/metrics"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/odrive"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/registry"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Action is the guarded work.
type Action func(ctx context.Context) (any, error)

// StateReader reads one display path from the device.
type StateReader interface {
	RefreshOne(ctx context.Context, displayPath string) (any, error)
}

// Commander sends device commands.
type Commander interface {
	ExecuteCommand(ctx context.Context, command string) (string, error)
}

// RegistryFunc returns the registry of the active firmware family.
type RegistryFunc func() *registry.Registry

type Config struct {
	SettleDelay  time.Duration
	IdleAttempts int
	PendingTTL   time.Duration
}

type pendingEntry struct {
	PendingAction
	action   Action
	settling bool
}

// Guard runs actions only while every axis is idle. Suspended actions wait
// for a remediation choice; the guard never queues a second action.
type Guard struct {
	reader    StateReader
	commander Commander
	registry  RegistryFunc
	cfg       Config
	metrics   metrics.Collector
	logger    *zap.Logger
	now       func() time.Time

	mu         sync.Mutex
	state      State
	pending    *pendingEntry
	axes       types.AxisStateSnapshot
	lastError  string
	lastChange time.Time
	listeners  []func(Status)
}

func New(reader StateReader, commander Commander, reg RegistryFunc, cfg Config, collector metrics.Collector, logger *zap.Logger) *Guard {
	// Defaults setzen
	if cfg.IdleAttempts <= 0 {
		cfg.IdleAttempts = 1
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 2 * time.Minute
	}
	if collector == nil {
		collector = metrics.Noop()
	}
	return &Guard{
		reader:     reader,
		commander:  commander,
		registry:   reg,
		cfg:        cfg,
		metrics:    collector,
		logger:     logger,
		now:        time.Now,
		state:      StateReady,
		axes:       types.AxisStateSnapshot{},
		lastChange: time.Now(),
	}
}

// OnChange registers a listener for state changes.
func (g *Guard) OnChange(fn func(Status)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expireLocked()
	return g.statusLocked()
}

// Axes returns the last AxisStateSnapshot.
func (g *Guard) Axes() types.AxisStateSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(types.AxisStateSnapshot, len(g.axes))
	for k, v := range g.axes {
		out[k] = v
	}
	return out
}

// Refresh re-reads every axis state. Used by the status monitor.
func (g *Guard) Refresh(ctx context.Context) ([]AxisStatus, error) {
	return g.readAxes(ctx)
}

// Discard drops the snapshot and any pending action, e.g. after a
// disconnect. An action that is settling right now finishes on its own.
func (g *Guard) Discard() {
	g.mu.Lock()
	g.axes = types.AxisStateSnapshot{}
	dropped := g.pending != nil && !g.pending.settling
	if dropped {
		g.logger.Info("Pending action discarded",
			zap.String("action", g.pending.Name),
			zap.String("pending_id", g.pending.ID.String()))
		g.pending = nil
	}
	g.mu.Unlock()

	if dropped {
		g.metrics.IncGuardIntervention("discarded")
		g.transition(StateReady, "")
	}
}

// Classify reports whether code counts as idle.
func (g *Guard) Classify(code int) bool {
	return g.registry().IsIdle(code)
}

// ExecuteGuarded runs action when every axis is idle. Otherwise the action
// is suspended and a *PendingError (ErrActionPending) is returned.
func (g *Guard) ExecuteGuarded(ctx context.Context, name string, action Action) (any, error) {
	g.mu.Lock()
	g.expireLocked()
	if g.pending != nil || g.state == StateChecking || g.state == StateSettling {
		g.mu.Unlock()
		return nil, ErrGuardBusy
	}
	// claimed under the same lock as the check
	notify := g.setStateLocked(StateChecking, "")
	g.mu.Unlock()
	notify()

	statuses, err := g.readAxes(ctx)
	if err != nil {
		g.transition(StateReady, "")
		return nil, fmt.Errorf("axis state check failed: %w", err)
	}

	busy := busyOf(statuses)
	if len(busy) == 0 {
		g.transition(StateReady, "")
		return action(ctx)
	}

	now := g.now()
	entry := &pendingEntry{
		PendingAction: PendingAction{
			ID:        uuid.New(),
			Name:      name,
			BusyAxes:  busy,
			CreatedAt: now,
			ExpiresAt: now.Add(g.cfg.PendingTTL),
		},
		action: action,
	}

	g.mu.Lock()
	g.pending = entry
	g.mu.Unlock()

	g.metrics.IncGuardIntervention("suspended")
	g.logger.Warn("Guarded action suspended",
		zap.String("action", name),
		zap.String("pending_id", entry.ID.String()),
		zap.Int("busy_axes", len(busy)))

	g.transition(StateAwaitingRemediation, "")
	return nil, &PendingError{Pending: entry.PendingAction}
}

// Resolve applies a remediation choice to the pending action.
func (g *Guard) Resolve(ctx context.Context, id uuid.UUID, choice Choice) (any, error) {
	if _, err := ParseChoice(string(choice)); err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.expireLocked()
	entry := g.pending
	if entry == nil || entry.ID != id {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrPendingNotFound, id)
	}
	if entry.settling {
		g.mu.Unlock()
		return nil, ErrGuardBusy
	}
	if choice == ChoiceForceIdle {
		entry.settling = true
	} else {
		g.pending = nil
	}
	g.mu.Unlock()

	g.logger.Info("Guarded action resolved",
		zap.String("action", entry.Name),
		zap.String("choice", string(choice)))

	switch choice {
	case ChoiceCancel:
		g.metrics.IncGuardIntervention(string(ChoiceCancel))
		g.transition(StateReady, "")
		return nil, nil

	case ChoiceProceed:
		g.metrics.IncGuardIntervention(string(ChoiceProceed))
		g.transition(StateReady, "")
		return entry.action(ctx)

	default:
		return g.forceIdle(ctx, entry)
	}
}

func (g *Guard) forceIdle(ctx context.Context, entry *pendingEntry) (any, error) {
	g.transition(StateSettling, "")

	reg := g.registry()
	busy := entry.BusyAxes

	for attempt := 1; attempt <= g.cfg.IdleAttempts; attempt++ {
		for _, a := range busy {
			cmd := reg.IdleCommand(a.Axis)
			if _, err := g.commander.ExecuteCommand(ctx, cmd); err != nil {
				g.logger.Error("Idle request failed",
					zap.Int("axis", a.Axis),
					zap.Error(err))
				if errors.Is(err, odrive.ErrNotConnected) {
					return nil, g.fail(entry, busy, attempt, err)
				}
			}
		}

		if err := sleep(ctx, g.cfg.SettleDelay); err != nil {
			return nil, g.fail(entry, busy, attempt, err)
		}

		statuses, err := g.readAxes(ctx)
		if err != nil {
			return nil, g.fail(entry, busy, attempt, err)
		}
		busy = busyOf(statuses)
		if len(busy) == 0 {
			g.mu.Lock()
			g.pending = nil
			g.mu.Unlock()

			g.metrics.IncGuardIntervention(string(ChoiceForceIdle))
			g.transition(StateReady, "")
			return entry.action(ctx)
		}

		g.logger.Warn("Axes still busy after idle request",
			zap.String("action", entry.Name),
			zap.Int("attempt", attempt),
			zap.Int("busy_axes", len(busy)))
	}

	busyErr := &BusyError{Pending: entry.PendingAction}
	busyErr.Pending.BusyAxes = busy
	busyErr.Pending.Attempts = entry.Attempts + g.cfg.IdleAttempts
	return nil, g.fail(entry, busy, g.cfg.IdleAttempts, busyErr)
}

// fail keeps the pending entry for another choice and enters StateFailed.
func (g *Guard) fail(entry *pendingEntry, busy []AxisStatus, attempts int, err error) error {
	g.mu.Lock()
	entry.settling = false
	entry.BusyAxes = busy
	entry.Attempts += attempts
	entry.ExpiresAt = g.now().Add(g.cfg.PendingTTL)
	g.pending = entry
	g.mu.Unlock()

	g.metrics.IncGuardIntervention("failed")
	g.transition(StateFailed, err.Error())
	return err
}

func (g *Guard) readAxes(ctx context.Context) ([]AxisStatus, error) {
	reg := g.registry()
	n := reg.AxisCount()

	statuses := make([]AxisStatus, 0, n)
	snapshot := make(types.AxisStateSnapshot, n)

	for axis := 0; axis < n; axis++ {
		code := UnknownState
		v, err := g.reader.RefreshOne(ctx, reg.StatePath(axis))
		switch {
		case errors.Is(err, odrive.ErrNotConnected):
			return nil, err
		case err != nil:
			g.logger.Warn("Axis state read failed", zap.Int("axis", axis), zap.Error(err))
		default:
			if f, ok := v.(float64); ok {
				code = int(f)
			}
		}

		snapshot[axis] = code
		statuses = append(statuses, AxisStatus{
			Axis:  axis,
			State: code,
			Label: reg.AxisStateLabel(code),
			Idle:  code != UnknownState && reg.IsIdle(code),
		})
	}

	g.mu.Lock()
	g.axes = snapshot
	g.mu.Unlock()

	return statuses, nil
}

func busyOf(statuses []AxisStatus) []AxisStatus {
	var busy []AxisStatus
	for _, s := range statuses {
		if !s.Idle {
			busy = append(busy, s)
		}
	}
	return busy
}

func (g *Guard) transition(state State, lastErr string) {
	g.mu.Lock()
	notify := g.setStateLocked(state, lastErr)
	g.mu.Unlock()
	notify()
}

// setStateLocked requires g.mu. The returned func informs the listeners and
// must be called after unlocking.
func (g *Guard) setStateLocked(state State, lastErr string) func() {
	if g.state == state && g.lastError == lastErr {
		return func() {}
	}
	g.state = state
	g.lastError = lastErr
	g.lastChange = g.now()
	status := g.statusLocked()
	listeners := append([]func(Status){}, g.listeners...)
	return func() {
		for _, fn := range listeners {
			fn(status)
		}
	}
}

func (g *Guard) expireLocked() {
	if g.pending == nil || g.now().Before(g.pending.ExpiresAt) {
		return
	}
	g.logger.Info("Pending action expired",
		zap.String("action", g.pending.Name),
		zap.String("pending_id", g.pending.ID.String()))
	g.metrics.IncGuardIntervention("expired")
	g.pending = nil
	g.state = StateReady
	g.lastError = ""
	g.lastChange = g.now()
}

func (g *Guard) statusLocked() Status {
	st := Status{
		State:      g.state,
		LastError:  g.lastError,
		LastChange: g.lastChange,
	}
	if g.pending != nil {
		p := g.pending.PendingAction
		p.BusyAxes = append([]AxisStatus(nil), p.BusyAxes...)
		st.Pending = &p
	}

	if len(g.axes) > 0 {
		reg := g.registry()
		for axis := 0; axis < len(g.axes); axis++ {
			code, ok := g.axes[axis]
			if !ok {
				continue
			}
			st.Axes = append(st.Axes, AxisStatus{
				Axis:  axis,
				State: code,
				Label: reg.AxisStateLabel(code),
				Idle:  code != UnknownState && reg.IsIdle(code),
			})
		}
	}
	return st
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
