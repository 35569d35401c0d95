package presets

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/registry"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/schema"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2026, 4, 2, 9, 30, 15, 250_000_000, time.UTC)

func newStore(t *testing.T, p Persistence) *Store {
	t.Helper()
	if p == nil {
		p = NewMemoryPersistence()
	}
	s, err := NewStore(p, zap.NewNop())
	require.NoError(t, err)
	s.now = func() time.Time { return fixedNow }
	require.NoError(t, s.Open(context.Background()))
	return s
}

func motorConfig() types.ConfigObject {
	return types.ConfigObject{
		types.CategoryMotor:   {"pole_pairs": 7, "motor_type": 0},
		types.CategoryControl: {"vel_limit": math.Inf(1)},
	}
}

func TestSaveAndGet(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	p, err := s.Save(ctx, "  Bench  ", "test rig", motorConfig(), false)
	require.NoError(t, err)
	assert.Equal(t, "Bench", p.Name)
	assert.Equal(t, "2026-04-02T09:30:15.250Z", p.Timestamp)
	assert.Equal(t, FormatVersion, p.Version)
	assert.True(t, ValidateConfig(p.Config), "every section is written")
	assert.Equal(t, "Infinity", p.Config.Section(types.CategoryControl)["vel_limit"])

	_, err = s.Save(ctx, "Bench", "", motorConfig(), false)
	assert.ErrorIs(t, err, ErrPresetExists)
	_, err = s.Save(ctx, "Bench", "replaced", motorConfig(), true)
	require.NoError(t, err)

	got, err := s.Get("Bench")
	require.NoError(t, err)
	assert.Equal(t, "replaced", got.Description)

	_, err = s.Get("nope")
	assert.ErrorIs(t, err, ErrPresetNotFound)
	_, err = s.Save(ctx, " ", "", motorConfig(), false)
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestFactoryPresetsAreReadOnly(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, "High Current Motor - D6374 150KV", list[0].Name)
	for _, m := range list {
		assert.True(t, m.Factory)
		assert.True(t, m.HasValidConfig, m.Name)
	}

	p, err := s.Get("Gimbal Motor - GBM2804 100KV")
	require.NoError(t, err)
	assert.Equal(t, 2.0, p.Config.Section(types.CategoryMotor)["motor_type"])

	assert.ErrorIs(t, s.Delete(ctx, "Gimbal Motor - GBM2804 100KV"), ErrFactoryPreset)
	_, err = s.Rename(ctx, "Gimbal Motor - GBM2804 100KV", "Mine", "")
	assert.ErrorIs(t, err, ErrFactoryPreset)
	_, err = s.Save(ctx, "Gimbal Motor - GBM2804 100KV", "", motorConfig(), true)
	assert.ErrorIs(t, err, ErrFactoryPreset)
}

func TestRenameAndDelete(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	_, err := s.Save(ctx, "A", "first", motorConfig(), false)
	require.NoError(t, err)
	_, err = s.Save(ctx, "B", "second", motorConfig(), false)
	require.NoError(t, err)

	_, err = s.Rename(ctx, "A", "B", "")
	assert.ErrorIs(t, err, ErrPresetExists)

	renamed, err := s.Rename(ctx, "A", " C ", " moved ")
	require.NoError(t, err)
	assert.Equal(t, "C", renamed.Name)
	assert.Equal(t, "moved", renamed.Description)

	_, err = s.Get("A")
	assert.ErrorIs(t, err, ErrPresetNotFound)

	require.NoError(t, s.Delete(ctx, "C"))
	assert.ErrorIs(t, s.Delete(ctx, "C"), ErrPresetNotFound)
}

func TestReimportSkipsExisting(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	_, err := s.Save(ctx, "Bench", "", motorConfig(), false)
	require.NoError(t, err)

	doc, err := s.Export([]string{"Bench"})
	require.NoError(t, err)
	assert.Equal(t, 1, doc.ExportInfo.PresetCount)
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	res, err := s.Import(ctx, data, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Imported)
	assert.Zero(t, res.Overwritten)

	res, err = s.Import(ctx, data, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Overwritten)
	assert.Zero(t, res.Imported)

	p, err := s.Get("Bench")
	require.NoError(t, err)
	assert.Equal(t, "2026-04-02T09:30:15.250Z", p.ImportDate)
	assert.Equal(t, "2026-04-02T09:30:15.250Z", p.OriginalExportDate)
}

func TestExportImportRoundTrip(t *testing.T) {
	input := `{
  "exportInfo": {"exportDate": "2025-11-02T10:00:00.000Z", "presetCount": 2},
  "presets": {
    "Spindle": {"name": "Spindle", "description": "router spindle", "timestamp": "2025-11-01T08:00:00.000Z", "version": "0.5.6",
      "config": {"motor": {"pole_pairs": 4, "current_lim": 35.5}, "control": {"vel_limit": "Infinity"}, "power": {}, "encoder": {}, "interface": {}},
      "upgraded": true},
    "Wheel": {"description": "hub", "name": "Wheel", "config": {"motor": {"pole_pairs": 15}}, "timestamp": "2025-10-01T08:00:00.000Z"}
  }
}`

	s := newStore(t, nil)
	res, err := s.Import(context.Background(), []byte(input), false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Empty(t, res.Errors)

	doc, err := s.Export(nil)
	require.NoError(t, err)
	out, err := json.Marshal(doc)
	require.NoError(t, err)

	var in, exported struct {
		Presets map[string]json.RawMessage `json:"presets"`
	}
	require.NoError(t, json.Unmarshal([]byte(input), &in))
	require.NoError(t, json.Unmarshal(out, &exported))
	require.Len(t, exported.Presets, 2)

	for name, original := range in.Presets {
		var want bytes.Buffer
		require.NoError(t, json.Compact(&want, original))

		fields, err := splitObject(exported.Presets[name])
		require.NoError(t, err)
		var kept []field
		for _, f := range fields {
			if f.key != "importDate" && f.key != "originalExportDate" {
				kept = append(kept, f)
			}
		}
		assert.Equal(t, want.String(), string(joinObject(kept)), name)
	}
}

func TestImportRejectsBadDocuments(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	_, err := s.Import(ctx, []byte(`{"exportInfo":{}}`), false)
	assert.ErrorIs(t, err, ErrInvalidPresetFile)
	_, err = s.Import(ctx, []byte(`not json`), false)
	assert.ErrorIs(t, err, ErrInvalidPresetFile)

	res, err := s.Import(ctx, []byte(`{"presets":{
		"NoConfig":{"name":"NoConfig"},
		"BadCategory":{"name":"BadCategory","config":{"thermal":{}}},
		"High Current Motor - D6374 150KV":{"name":"x","config":{}},
		"Good":{"name":"Good","config":{"motor":{}}}
	}}`), false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.Skipped, "factory names count as taken")
	assert.Len(t, res.Errors, 2)
}

func TestFilePersistenceSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets", "user.json")
	ctx := context.Background()

	s := newStore(t, NewFilePersistence(path))
	_, err := s.Save(ctx, "Bench", "", motorConfig(), false)
	require.NoError(t, err)
	_, err = s.Save(ctx, "Spare", "", motorConfig(), false)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "Spare"))

	reopened := newStore(t, NewFilePersistence(path))
	p, err := reopened.Get("Bench")
	require.NoError(t, err)
	assert.Equal(t, 7.0, p.Config.Section(types.CategoryMotor)["pole_pairs"])
	_, err = reopened.Get("Spare")
	assert.ErrorIs(t, err, ErrPresetNotFound)
}

func loadRegistry(t *testing.T, name string) *registry.Registry {
	t.Helper()
	l, err := schema.NewLoader(nil)
	require.NoError(t, err)
	sch, err := l.Load(name)
	require.NoError(t, err)
	return registry.Build(sch)
}

func TestCoverageAndUpgrade(t *testing.T) {
	reg := loadRegistry(t, "odrive-0.5")
	s := newStore(t, nil)
	ctx := context.Background()

	_, err := s.Save(ctx, "Sparse", "", types.ConfigObject{
		types.CategoryMotor: {"pole_pairs": 7},
	}, false)
	require.NoError(t, err)

	cov, err := s.Coverage("Sparse", reg)
	require.NoError(t, err)
	assert.Equal(t, 1, cov.Covered)
	assert.Equal(t, cov.Total-1, len(cov.Missing))
	assert.NotContains(t, cov.Missing, "motor.pole_pairs")

	upgraded, err := s.Upgrade(ctx, "Sparse", reg)
	require.NoError(t, err)
	after, err := s.Coverage("Sparse", reg)
	require.NoError(t, err)
	assert.Equal(t, 100, after.Percentage)
	assert.Empty(t, after.Missing)
	assert.Equal(t, 7.0, upgraded.Config.Section(types.CategoryMotor)["pole_pairs"])

	factory, err := s.Coverage("Hoverboard Motor - 6.5\" Wheel", reg)
	require.NoError(t, err)
	assert.Positive(t, factory.Covered)

	_, err = s.Coverage("nope", reg)
	assert.ErrorIs(t, err, ErrPresetNotFound)
}
