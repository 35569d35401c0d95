package paths

import (
	"math"
	"testing"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRules() Rules {
	return Rules{
		Device:     "odrv0",
		DeviceRoot: []string{"vbus_voltage", "serial_number", "ibus", "hw_version_major", "system_stats"},
		Renames: []Rename{
			{From: "endstop_state", To: "state"},
			{From: "is_saturated", To: "was_saturated"},
		},
		Unsupported: []string{"otp_valid", "encoder.config.use_index", "I_bus", "config.error_gpio_pin"},
		Sections:    []string{"system", "config", "can"},
	}
}

func TestParseDropsEmptySegments(t *testing.T) {
	assert.Equal(t, Path{"axis0", "motor", "config"}, Parse("axis0..motor.config."))
	assert.Nil(t, Parse(""))
	assert.Equal(t, "axis0.motor", Parse("axis0.motor").String())
}

func TestAxisSegmentsAreExact(t *testing.T) {
	p10 := Parse("axis10.motor.config.pole_pairs")
	p1 := Parse("axis1")

	assert.False(t, p10.HasPrefix(p1), "axis1 must not match axis10")
	assert.Equal(t, 10, p10.AxisIndex())
	assert.Equal(t, -1, Parse("axisX.motor").AxisIndex())
	assert.Equal(t, -1, Parse("axis").AxisIndex())
	assert.Equal(t, -1, Parse("config.axis0").AxisIndex())
}

func TestWithAxisAndNormalize(t *testing.T) {
	p := Parse("axis0.controller.config.vel_limit")

	assert.Equal(t, "axis1.controller.config.vel_limit", p.WithAxis(1).String())
	assert.Equal(t, "axis*.controller.config.vel_limit", p.NormalizeAxis().String())
	assert.Equal(t, "axis0.controller.config.vel_limit", p.String(), "original path must not be mutated")

	device := Parse("config.dc_max_positive_current")
	assert.Equal(t, device, device.WithAxis(1))
}

func TestToDevicePath(t *testing.T) {
	r := testRules()

	tests := []struct {
		display string
		device  string
	}{
		{"system.vbus_voltage", "vbus_voltage"},
		{"system.serial_number", "serial_number"},
		{"system.dc_bus_overvoltage_trip_level", "config.dc_bus_overvoltage_trip_level"},
		{"system.system_stats.uptime", "system_stats.uptime"},
		{"config.dc_max_positive_current", "config.dc_max_positive_current"},
		{"axis0.motor.config.pole_pairs", "axis0.motor.config.pole_pairs"},
		{"can.config.baud_rate", "can.config.baud_rate"},
		{"system", "system"},
	}

	for _, tt := range tests {
		t.Run(tt.display, func(t *testing.T) {
			assert.Equal(t, tt.device, r.DeviceString(tt.display))
		})
	}
}

func TestDeviceRootRoundTrip(t *testing.T) {
	r := testRules()
	for _, name := range []string{"vbus_voltage", "serial_number", "ibus", "hw_version_major"} {
		display := Parse("system." + name)
		assert.Equal(t, display, r.FromDevicePath(r.ToDevicePath(display)))
	}

	assert.Equal(t, "config.dc_bus_undervoltage_trip_level", r.DisplayString("config.dc_bus_undervoltage_trip_level"))
	assert.Equal(t, "axis1.encoder.config.cpr", r.DisplayString("axis1.encoder.config.cpr"))
}

func TestZeroRulesMapToConfig(t *testing.T) {
	var r Rules
	assert.Equal(t, "config.vbus_voltage", r.DeviceString("system.vbus_voltage"))
}

func TestCommandTarget(t *testing.T) {
	r := testRules()

	target, err := r.CommandTarget(Parse("axis0.motor.config.pole_pairs"), nil)
	require.NoError(t, err)
	assert.Equal(t, "odrv0.axis0.motor.config.pole_pairs", target)

	axis := 1
	target, err = r.CommandTarget(Parse("axis0.motor.config.pole_pairs"), &axis)
	require.NoError(t, err)
	assert.Equal(t, "odrv0.axis1.motor.config.pole_pairs", target)

	target, err = r.CommandTarget(Parse("system.dc_max_negative_current"), &axis)
	require.NoError(t, err)
	assert.Equal(t, "odrv0.config.dc_max_negative_current", target)

	_, err = r.CommandTarget(nil, nil)
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestCompatibilityTables(t *testing.T) {
	r := testRules()

	assert.Equal(t, "axis0.min_endstop.state", r.CompatiblePath(Parse("axis0.min_endstop.endstop_state")).String())
	assert.Equal(t, "axis1.motor.current_control.was_saturated",
		r.CompatiblePath(Parse("axis1.motor.current_control.is_saturated")).String())
	// only whole segments are renamed
	assert.Equal(t, "axis0.min_endstop.endstop_state_x",
		r.CompatiblePath(Parse("axis0.min_endstop.endstop_state_x")).String())

	orig := Parse("axis0.min_endstop.endstop_state")
	r.CompatiblePath(orig)
	assert.Equal(t, "endstop_state", orig.Leaf())

	assert.False(t, r.IsSupported(Parse("system.otp_valid")))
	assert.False(t, r.IsSupported(Parse("axis0.encoder.config.use_index")))
	assert.True(t, r.IsSupported(Parse("axis0.encoder.config.cpr")))
}

func TestUnsupportedMatchesWholeSegments(t *testing.T) {
	r := testRules()

	tests := []struct {
		path      string
		supported bool
	}{
		{"axis0.motor.I_bus", false},
		{"axis1.motor.alpha_beta_controller.I_bus", false},
		{"axis0.config.I_bus_hard_min", true},
		{"axis0.config.I_bus_hard_max", true},
		{"config.error_gpio_pin", false},
		{"axis0.config.error_gpio_pin", true},
		{"axis0.encoder.config.use_index_offset", true},
		{"axis0.encoder.config", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.supported, r.IsSupported(Parse(tt.path)))
		})
	}
}

func TestPathIndex(t *testing.T) {
	p := Parse("axis0.encoder.config.use_index")
	assert.Equal(t, 1, p.Index(Parse("encoder.config")))
	assert.Equal(t, 3, p.Index(Parse("use_index")))
	assert.Equal(t, -1, p.Index(Parse("config.encoder")))
	assert.Equal(t, -1, p.Index(nil))
}

func TestInferCategory(t *testing.T) {
	rules := []CategoryRule{
		{Category: types.CategoryPower, Prefix: []string{"config.dc_bus_"}, Contains: []string{"brake_resistor"}},
		{Category: types.CategoryMotor, Contains: []string{"motor", "pole_pairs", "torque", "thermistor"}},
		{Category: types.CategoryEncoder, Contains: []string{"encoder", "cpr", "hall"}},
		{Category: types.CategoryControl, Contains: []string{"controller", "pos_gain", "vel_gain", "anticogging"}},
		{Category: types.CategoryInterface, Contains: []string{"can", "uart", "gpio", "watchdog", "sensorless", "enable_"}},
	}

	tests := []struct {
		path string
		want types.Category
	}{
		{"config.dc_bus_overvoltage_trip_level", types.CategoryPower},
		{"brake_resistor0.config.resistance", types.CategoryPower},
		{"axis0.config.motor.pole_pairs", types.CategoryMotor},
		{"axis1.encoder.config.cpr", types.CategoryEncoder},
		{"axis0.controller.config.pos_gain", types.CategoryControl},
		{"can.config.baud_rate", types.CategoryInterface},
		{"axis0.config.enable_watchdog", types.CategoryInterface},
		{"system.vbus_voltage", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			first := InferCategory(rules, tt.path)
			assert.Equal(t, tt.want, first)
			assert.Equal(t, first, InferCategory(rules, tt.path), "classification must be stable")
		})
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"true", true, "True"},
		{"false", false, "False"},
		{"integral float", 7.0, "7"},
		{"fraction", 0.25, "0.25"},
		{"large", 2e6, "2000000"},
		{"small", 1e-7, "0.0000001"},
		{"positive infinity", math.Inf(1), "1000000"},
		{"negative infinity", math.Inf(-1), "-1000000"},
		{"inf string", "inf", "1000000"},
		{"int", 3, "3"},
		{"string", "odrv0.axis0", "odrv0.axis0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.in))
		})
	}

	assert.Equal(t, "odrv0.axis1.motor.config.pole_pairs = 7", Assignment("odrv0.axis1.motor.config.pole_pairs", 7.0))
}
