package interfaces

import (
	"context"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/commands"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/config"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/guard"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/odrive"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/presets"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/telemetry"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/variant"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State        string `json:"state"`
	Family       string `json:"family"`
	Firmware     string `json:"firmware"`
	Connected    bool   `json:"connected"`
	DeviceSerial string `json:"device_serial,omitempty"`
	GuardState   string `json:"guard_state"`
	Consumers    int    `json:"consumers"`
	Presets      int    `json:"presets"`
}

type LifecycleManager interface {
	Config() *config.Config
	Firmware() *variant.Active
	Device() *odrive.Client
	Synchronizer() *telemetry.Synchronizer
	Pollers() *telemetry.Pollers
	Guard() *guard.Guard
	Synthesizer() *commands.Synthesizer
	Presets() *presets.Store
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
