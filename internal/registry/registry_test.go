package registry

import (
	"math"
	"strings"
	"testing"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/paths"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/schema"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadRegistry(t *testing.T, name string) *Registry {
	t.Helper()
	l, err := schema.NewLoader(nil)
	require.NoError(t, err)
	s, err := l.Load(name)
	require.NoError(t, err)
	return Build(s)
}

func bothVariants(t *testing.T) map[string]*Registry {
	return map[string]*Registry{
		"legacy":  loadRegistry(t, "odrive-0.5"),
		"current": loadRegistry(t, "odrive-0.6"),
	}
}

func intPtr(i int) *int { return &i }

func TestMissingPathIsNotFound(t *testing.T) {
	current := loadRegistry(t, "odrive-0.6")
	legacy := loadRegistry(t, "odrive-0.5")

	_, err := current.Lookup("axis0.encoder.config.use_index")
	assert.ErrorIs(t, err, ErrParameterNotFound)
	_, err = current.Parameter("axis0.encoder.config.use_index")
	assert.ErrorIs(t, err, ErrParameterNotFound)

	n, err := legacy.Lookup("axis0.encoder.config.use_index")
	require.NoError(t, err)
	assert.True(t, n.Writable)

	// read-only leaves resolve as well
	_, err = current.Lookup("system.vbus_voltage")
	assert.NoError(t, err)
}

func TestMotorConfigTargetsRequestedAxis(t *testing.T) {
	for name, r := range bothVariants(t) {
		t.Run(name, func(t *testing.T) {
			cfg := types.ConfigObject{
				types.CategoryMotor: {"pole_pairs": 7, "motor_type": 0},
			}

			cmds := r.GenerateAllCommands(cfg, intPtr(1))
			require.Len(t, cmds, 2)
			for _, c := range cmds {
				assert.Contains(t, c, "axis1")
				assert.NotContains(t, c, "axis0")
				assert.True(t, strings.HasPrefix(c, "odrv0.axis1."), c)
			}

			joined := strings.Join(cmds, "\n")
			assert.Contains(t, joined, "pole_pairs = 7")
			assert.Contains(t, joined, "motor_type = 0")

			all := r.GenerateAllCommands(cfg, nil)
			assert.Len(t, all, 4)
		})
	}
}

func TestCommandGenerationIsDeterministic(t *testing.T) {
	r := loadRegistry(t, "odrive-0.6")

	cfg := types.NewConfigObject()
	for _, cat := range types.Categories {
		for key := range r.PropertyMappings(cat) {
			cfg.Set(cat, key, 1)
		}
	}

	first := r.GenerateAllCommands(cfg, intPtr(0))
	require.NotEmpty(t, first)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, r.GenerateAllCommands(cfg, intPtr(0)))
	}
}

func TestCommandsFollowCategoryOrder(t *testing.T) {
	r := loadRegistry(t, "odrive-0.5")

	cfg := types.ConfigObject{
		types.CategoryInterface: {"enable_watchdog": true},
		types.CategoryControl:   {"vel_limit": math.Inf(1)},
		types.CategoryMotor:     {"pole_pairs": 7},
		types.CategoryPower:     {"dc_max_positive_current": 10.5},
		types.CategoryEncoder:   {"cpr": 8192},
	}

	cmds := r.GenerateAllCommands(cfg, intPtr(0))
	assert.Equal(t, []string{
		"odrv0.config.dc_max_positive_current = 10.5",
		"odrv0.axis0.motor.config.pole_pairs = 7",
		"odrv0.axis0.encoder.config.cpr = 8192",
		"odrv0.axis0.controller.config.vel_limit = 1000000",
		"odrv0.axis0.config.enable_watchdog = True",
	}, cmds)
}

func TestUnknownKeysAreSkipped(t *testing.T) {
	r := loadRegistry(t, "odrive-0.6")

	cfg := types.ConfigObject{
		types.CategoryMotor: {"no_such_key": 3, "pole_pairs": nil},
	}
	assert.Empty(t, r.GenerateAllCommands(cfg, nil))
	assert.Empty(t, r.GenerateAllCommands(nil, nil))
}

func TestSystemPathRoundTrip(t *testing.T) {
	for name, r := range bothVariants(t) {
		t.Run(name, func(t *testing.T) {
			rules := r.Rules()
			checked := 0
			for _, display := range r.BatchPaths() {
				p := paths.Parse(display)
				if p.Section() != "system" || p.Len() != 2 || !rules.IsDeviceRoot(p.Leaf()) {
					continue
				}
				assert.Equal(t, p, rules.FromDevicePath(rules.ToDevicePath(p)), display)
				checked++
			}
			assert.Greater(t, checked, 5)
		})
	}
}

func TestCategoryCompleteness(t *testing.T) {
	for name, r := range bothVariants(t) {
		t.Run(name, func(t *testing.T) {
			classified := map[string]types.Category{}
			for _, cat := range types.Categories {
				for _, p := range r.ConfigCategories()[cat] {
					prev, dup := classified[p.DisplayPath]
					assert.False(t, dup, "%s in %s and %s", p.DisplayPath, prev, cat)
					classified[p.DisplayPath] = cat
					assert.Equal(t, cat, p.Category)
				}
			}

			unclassified := map[string]bool{}
			for _, u := range r.Unclassified() {
				unclassified[u] = true
			}

			rules := r.Rules()
			writable := 0
			require.NoError(t, r.Schema().Walk(func(p paths.Path, leaf *schema.Node) error {
				if !leaf.Writable || !rules.IsSupported(p) {
					return nil
				}
				writable++
				p = rules.CompatiblePath(p)
				_, isClassified := classified[p.String()]
				isUnclassified := unclassified[p.NormalizeAxis().String()]
				assert.True(t, isClassified != isUnclassified, p.String())
				return nil
			}))
			assert.Equal(t, writable, r.DebugInfo().Writable)
		})
	}
}

func TestConfigKeysAreUniquePerCategory(t *testing.T) {
	for name, r := range bothVariants(t) {
		t.Run(name, func(t *testing.T) {
			for _, cat := range types.Categories {
				shapes := map[string]string{}
				for _, p := range r.ConfigCategories()[cat] {
					shape := p.Path.NormalizeAxis().String()
					if prev, ok := shapes[p.ConfigKey]; ok {
						assert.Equal(t, prev, shape, "key %s.%s", cat, p.ConfigKey)
					}
					shapes[p.ConfigKey] = shape
				}
			}
		})
	}
}

func TestCollisionsAreResolvedAndReported(t *testing.T) {
	r := loadRegistry(t, "odrive-0.6")

	var found *Collision
	for _, c := range r.Collisions() {
		if c.Key == "index_offset" && c.Kind == CollisionWithinCategory {
			c := c
			found = &c
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, []types.Category{types.CategoryEncoder}, found.Categories)

	p, err := r.FindParameter(types.CategoryEncoder, "pos_vel_mapper_index_offset")
	require.NoError(t, err)
	assert.Equal(t, "axis0.pos_vel_mapper.config.index_offset", p.DisplayPath)

	p, err = r.FindParameter(types.CategoryEncoder, "commutation_mapper_index_offset")
	require.NoError(t, err)
	assert.Equal(t, "axis0.commutation_mapper.config.index_offset", p.DisplayPath)

	_, err = r.FindParameter(types.CategoryEncoder, "index_offset")
	assert.ErrorIs(t, err, ErrParameterNotFound)

	legacy := loadRegistry(t, "odrive-0.5")
	p, err = legacy.FindParameter(types.CategoryMotor, "calibration_lockin_ramp_time")
	require.NoError(t, err)
	assert.Equal(t, "axis0.config.calibration_lockin.ramp_time", p.DisplayPath)
}

func TestKeyOverrides(t *testing.T) {
	legacy := loadRegistry(t, "odrive-0.5")

	p, err := legacy.FindParameter(types.CategoryMotor, "motor_kv")
	require.NoError(t, err)
	assert.Equal(t, "axis0.motor.config.torque_constant", p.DisplayPath)

	p, err = legacy.FindParameter(types.CategoryControl, "trap_vel_limit")
	require.NoError(t, err)
	assert.Equal(t, "axis0.trap_traj.config.vel_limit", p.DisplayPath)

	assert.Len(t, legacy.Instances(types.CategoryMotor, "pole_pairs"), 2)
}

func TestBatchPaths(t *testing.T) {
	for name, r := range bothVariants(t) {
		t.Run(name, func(t *testing.T) {
			batch := r.BatchPaths()
			seen := map[string]bool{}
			for _, p := range batch {
				assert.False(t, seen[p], "duplicate %s", p)
				seen[p] = true
			}

			assert.True(t, seen["system.vbus_voltage"])
			for axis := 0; axis < r.AxisCount(); axis++ {
				assert.True(t, seen[r.StatePath(axis)])
			}

			rules := r.Rules()
			require.NoError(t, r.Schema().Walk(func(p paths.Path, leaf *schema.Node) error {
				if !leaf.Writable && rules.IsSupported(p) {
					display := rules.CompatiblePath(p).String()
					assert.True(t, seen[display], "telemetry leaf %s not polled", display)
				}
				return nil
			}))

			// config parameters seed the editors
			for _, cat := range types.Categories {
				for key, display := range r.PropertyMappings(cat) {
					if strings.Contains(display, ".config.") {
						assert.True(t, seen[display], "%s.%s (%s) not polled", cat, key, display)
					}
				}
			}
		})
	}
}

func TestLegacyBatchExclusions(t *testing.T) {
	r := loadRegistry(t, "odrive-0.5")

	// writable but a known live value, not polled as configuration
	n, err := r.Lookup("axis0.controller.input_pos")
	require.NoError(t, err)
	require.True(t, n.Writable)
	assert.NotContains(t, r.BatchPaths(), "axis0.controller.input_pos")
}

func TestValidateConfig(t *testing.T) {
	r := loadRegistry(t, "odrive-0.5")

	res := r.ValidateConfig(types.CategoryPower, map[string]any{
		"dc_max_positive_current":       math.NaN(),
		"dc_bus_overvoltage_trip_level": 80.0,
		"brake_resistor_enabled":        "yes",
		"not_a_parameter":               1,
		"max_regen_current":             math.Inf(1),
	})
	assert.False(t, res.Valid)
	assert.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0]+res.Errors[1], "NaN")
	assert.Len(t, res.Warnings, 3)

	ok := r.ValidateConfig(types.CategoryMotor, map[string]any{"pole_pairs": 7.0})
	assert.True(t, ok.Valid)
	assert.Empty(t, ok.Errors)

	bad := r.ValidateConfig(types.Category("thermal"), map[string]any{})
	assert.False(t, bad.Valid)

	all := r.ValidateConfigObject(types.ConfigObject{
		types.CategoryMotor: {"pole_pairs": "seven"},
	})
	assert.False(t, all.Valid)
	assert.Equal(t, []string{"motor.pole_pairs: expected a number, got string"}, all.Errors)
}

func TestStaticCommands(t *testing.T) {
	current := loadRegistry(t, "odrive-0.6")
	legacy := loadRegistry(t, "odrive-0.5")

	reboot, ok := current.Command("reboot")
	require.True(t, ok)
	assert.Equal(t, "odrv0.reboot()", reboot.Command)
	assert.True(t, reboot.Risky)

	_, ok = current.Command("identify_once")
	assert.True(t, ok)
	_, ok = legacy.Command("identify_once")
	assert.False(t, ok)

	feed, err := current.RenderCommand("watchdog_feed", intPtr(1))
	require.NoError(t, err)
	assert.Equal(t, "odrv0.axis1.watchdog_feed()", feed)
	_, err = current.RenderCommand("watchdog_feed", nil)
	assert.Error(t, err)
	_, err = legacy.RenderCommand("watchdog_feed", intPtr(2))
	assert.Error(t, err)
	save, err := legacy.RenderCommand("save_configuration", intPtr(1))
	require.NoError(t, err)
	assert.Equal(t, "odrv0.save_configuration()", save)

	assert.Equal(t, "odrv0.axis0.requested_state = 1", current.IdleCommand(0))
	cmd, err := current.AxisStateCommand(1, 8)
	require.NoError(t, err)
	assert.Equal(t, "odrv0.axis1.requested_state = 8", cmd)

	_, err = current.AxisStateCommand(2, 8)
	assert.Error(t, err)
	_, err = current.AxisStateCommand(0, 99)
	assert.Error(t, err)

	_, err = legacy.AxisStateCommand(0, 15)
	assert.Error(t, err, "harmonic calibration does not exist on legacy firmware")

	assert.Equal(t, "axis1.current_state", current.StatePath(1))
	assert.Equal(t, "Closed Loop Control", current.AxisStateLabel(8))
}

func TestIdleClassificationIsPure(t *testing.T) {
	r := loadRegistry(t, "odrive-0.6")

	for i := 0; i < 3; i++ {
		assert.True(t, r.IsIdle(0))
		assert.True(t, r.IsIdle(1))
		assert.False(t, r.IsIdle(8))
		assert.False(t, r.IsIdle(3))
	}
}

func TestDebugInfo(t *testing.T) {
	r := loadRegistry(t, "odrive-0.6")
	st := r.DebugInfo()

	assert.Equal(t, "current", st.Family)
	assert.Equal(t, len(r.BatchPaths()), st.BatchPaths)
	assert.Equal(t, len(r.ConfigCategories()[types.CategoryMotor]), st.Parameters[types.CategoryMotor])
	assert.Equal(t, st.Parameters[types.CategoryMotor]/2, st.Keys[types.CategoryMotor])
}

func TestUnsupportedLeavesAreNotListed(t *testing.T) {
	for name, r := range bothVariants(t) {
		t.Run(name, func(t *testing.T) {
			rules := r.Rules()
			for _, display := range r.BatchPaths() {
				assert.True(t, rules.IsSupported(paths.Parse(display)), display)
			}
			for cat, params := range r.ConfigCategories() {
				for _, p := range params {
					assert.True(t, rules.IsSupported(p.Path), "%s: %s", cat, p.DisplayPath)
				}
			}
		})
	}
}

func TestCurrentHidesRemovedLeaves(t *testing.T) {
	current := loadRegistry(t, "odrive-0.6")
	batch := current.BatchPaths()

	assert.Contains(t, batch, "axis0.config.I_bus_hard_min")
	assert.Contains(t, batch, "axis1.config.error_gpio_pin")
	assert.NotContains(t, batch, "axis0.motor.alpha_beta_controller.I_bus")
	assert.NotContains(t, batch, "axis1.pos_vel_mapper.pos_abs")
	assert.Positive(t, current.DebugInfo().Unsupported)

	n, err := current.Lookup("axis0.config.I_bus_hard_min")
	require.NoError(t, err)
	assert.True(t, n.Writable)

	_, err = current.Lookup("axis0.motor.alpha_beta_controller.I_bus")
	assert.ErrorIs(t, err, ErrParameterNotFound)
}

func TestLegacyNamesResolveOnCurrent(t *testing.T) {
	current := loadRegistry(t, "odrive-0.6")

	n, err := current.Lookup("axis0.min_endstop.endstop_state")
	require.NoError(t, err)
	assert.False(t, n.Writable)
	assert.Contains(t, current.BatchPaths(), "axis0.min_endstop.state")
	assert.NotContains(t, current.BatchPaths(), "axis0.min_endstop.endstop_state")
}
