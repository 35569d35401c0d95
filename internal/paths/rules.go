package paths

import (
	"errors"
	"slices"
)

const systemSection = "system"
const configSection = "config"

var ErrEmptyPath = errors.New("empty path")

// Rename replaces a whole path segment.
type Rename struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// Rules are the variant specific path mapping tables. The zero value maps
// every system.* path to config.*.
type Rules struct {
	Device      string   `yaml:"-" json:"device"`
	DeviceRoot  []string `yaml:"device_root" json:"device_root"`
	Renames     []Rename `yaml:"renames" json:"renames,omitempty"`
	Unsupported []string `yaml:"unsupported" json:"unsupported,omitempty"`
	// Sections are the top-level section names. An unsupported entry that
	// starts with one of them only matches at the root.
	Sections []string `yaml:"-" json:"-"`
}

// IsDeviceRoot reports whether name lives directly on the device object.
func (r Rules) IsDeviceRoot(name string) bool {
	for _, n := range r.DeviceRoot {
		if n == name {
			return true
		}
	}
	return false
}

// ToDevicePath maps a display path to the device's native path.
//
//	system.vbus_voltage                 -> vbus_voltage
//	system.dc_bus_overvoltage_trip_level -> config.dc_bus_overvoltage_trip_level
//	axis0.motor.config.pole_pairs       -> axis0.motor.config.pole_pairs
func (r Rules) ToDevicePath(display Path) Path {
	if display.Section() != systemSection || len(display) < 2 {
		return display.Clone()
	}
	rest := display.Rest()
	// nested device-root objects (system_stats.uptime) stay at the root too
	if r.IsDeviceRoot(rest[0]) {
		return rest
	}
	return rest.Prepend(configSection)
}

// FromDevicePath is the inverse of ToDevicePath for device-root names.
// Every other path is returned unchanged.
func (r Rules) FromDevicePath(device Path) Path {
	if len(device) == 1 && r.IsDeviceRoot(device[0]) {
		return device.Prepend(systemSection)
	}
	return device.Clone()
}

// DeviceString is ToDevicePath on dotted strings.
func (r Rules) DeviceString(display string) string {
	return r.ToDevicePath(Parse(display)).String()
}

// DisplayString is FromDevicePath on dotted strings.
func (r Rules) DisplayString(device string) string {
	return r.FromDevicePath(Parse(device)).String()
}

// CommandTarget renders the fully qualified command target for a display
// path, optionally retargeted at another axis.
func (r Rules) CommandTarget(display Path, axis *int) (string, error) {
	if display.IsEmpty() {
		return "", ErrEmptyPath
	}
	p := r.ToDevicePath(display)
	if axis != nil {
		p = p.WithAxis(*axis)
	}
	if r.Device == "" {
		return p.String(), nil
	}
	return p.Prepend(r.Device).String(), nil
}

// CompatiblePath applies the variant's segment renames, e.g.
// axis0.min_endstop.endstop_state -> axis0.min_endstop.state.
func (r Rules) CompatiblePath(p Path) Path {
	out := p.Clone()
	for i, seg := range out {
		for _, rn := range r.Renames {
			if seg == rn.From {
				out[i] = rn.To
				break
			}
		}
	}
	return out
}

// IsSupported reports whether a path survives the variant's exclusion list.
// Entries match whole segments: I_bus hides motor.I_bus but not
// config.I_bus_hard_max, and config.error_gpio_pin hides the root setting
// but not axis0.config.error_gpio_pin.
func (r Rules) IsSupported(p Path) bool {
	for _, entry := range r.Unsupported {
		x := Parse(entry)
		if x.IsEmpty() {
			continue
		}
		if slices.Contains(r.Sections, x[0]) {
			if p.HasPrefix(x) {
				return false
			}
		} else if p.Index(x) >= 0 {
			return false
		}
	}
	return true
}
