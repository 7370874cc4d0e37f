package main

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carla-autocontrol/closed_loop/route"
	"carla-autocontrol/geometry"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultRunConfig(t *testing.T) {
	cfg := DefaultRunConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "localhost", cfg.Bridge.Addr)
	assert.Equal(t, 2000, cfg.Bridge.Port)
	assert.Equal(t, 50*time.Millisecond, cfg.Timing.FixedDelta())
	assert.Equal(t, route.PolicyFirst, cfg.Route.Policy)
	assert.Empty(t, cfg.CAN.Interface)

	start := cfg.Vehicle.StartPose.Pose()
	assert.InDelta(t, 83.075226, start.Location.X, 1e-9)
	assert.InDelta(t, geometry.Rad(-179.84079), start.Rotation.Yaw, 1e-12)
}

func TestLoadRunConfigEmptyPath(t *testing.T) {
	cfg, err := LoadRunConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRunConfig(), cfg)
}

func TestLoadRunConfigOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"meta": {"name": "fork-test"},
		"bridge": {"port": 2100},
		"controller": {"target_speed_kmh": 12},
		"route": {"policy": "random", "seed": 7}
	}`)

	cfg, err := LoadRunConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "fork-test", cfg.Meta.Name)
	assert.Equal(t, 2100, cfg.Bridge.Port)
	assert.Equal(t, "localhost", cfg.Bridge.Addr, "unset fields keep their defaults")
	assert.Equal(t, 12.0, cfg.Controller.TargetSpeedKMH)
	assert.Equal(t, 5.0, cfg.Controller.SpeedThresholdMPS)
	assert.Equal(t, route.PolicyRandom, cfg.Route.Policy)
	assert.Equal(t, uint64(7), cfg.Route.Seed)
}

func TestLoadRunConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"bridge": `},
		{"unknown policy", `{"route": {"policy": "shortest"}}`},
		{"bad port", `{"bridge": {"port": 70000}}`},
		{"zero step", `{"timing": {"fixed_delta_s": 0}}`},
		{"negative lookahead", `{"controller": {"lookahead_distance_m": -1}}`},
		{"can without map", `{"can": {"interface": "vcan0", "map_path": ""}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRunConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadRunConfigMissingFile(t *testing.T) {
	_, err := LoadRunConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestShippedRunConfigLoads(t *testing.T) {
	cfg, err := LoadRunConfig("../config/run.json")
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Meta.Name)
}

func TestRunConfigJSONRoundTrip(t *testing.T) {
	cfg := DefaultRunConfig()
	cfg.Route.Policy = route.PolicyRandom

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"policy":"random"`)

	var back RunConfig
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, cfg, back)
}

func TestApplyFlagOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"bridge": {"addr": "sim-host", "port": 3000},
		"controller": {"target_speed_kmh": 12},
		"route": {"policy": "random", "seed": 7}
	}`)
	fromFile, err := LoadRunConfig(path)
	require.NoError(t, err)

	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, cfg RunConfig)
	}{
		{
			name: "no flags keeps the file",
			args: nil,
			check: func(t *testing.T, cfg RunConfig) {
				assert.Equal(t, fromFile, cfg)
			},
		},
		{
			name: "unset flags do not apply their defaults",
			args: []string{"-max-ticks", "100"},
			check: func(t *testing.T, cfg RunConfig) {
				assert.Equal(t, uint64(100), cfg.Timing.MaxTicks)
				assert.Equal(t, "sim-host", cfg.Bridge.Addr)
				assert.Equal(t, 3000, cfg.Bridge.Port)
				assert.Equal(t, 12.0, cfg.Controller.TargetSpeedKMH)
				assert.Equal(t, route.PolicyRandom, cfg.Route.Policy)
			},
		},
		{
			name: "explicit flags beat the file",
			args: []string{"-addr", "10.0.0.5", "-port", "2000", "-target-speed", "5", "-policy", "first", "-seed", "9"},
			check: func(t *testing.T, cfg RunConfig) {
				assert.Equal(t, "10.0.0.5", cfg.Bridge.Addr)
				assert.Equal(t, 2000, cfg.Bridge.Port)
				assert.Equal(t, 5.0, cfg.Controller.TargetSpeedKMH)
				assert.Equal(t, route.PolicyFirst, cfg.Route.Policy)
				assert.Equal(t, uint64(9), cfg.Route.Seed)
			},
		},
		{
			name: "world and can tap",
			args: []string{"-world", "Town03", "-can-iface", "vcan0", "-can-map", "/tmp/map.csv"},
			check: func(t *testing.T, cfg RunConfig) {
				assert.Equal(t, "Town03", cfg.Bridge.World)
				assert.Equal(t, "vcan0", cfg.CAN.Interface)
				assert.Equal(t, "/tmp/map.csv", cfg.CAN.MapPath)
			},
		},
		{
			name: "logging flags leave the config alone",
			args: []string{"-log", "trace", "-log-file", "/tmp/x.log", "-config", path},
			check: func(t *testing.T, cfg RunConfig) {
				assert.Equal(t, fromFile, cfg)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFlagSet("test", flag.ContinueOnError)
			require.NoError(t, fs.Parse(tt.args))

			cfg, err := applyFlagOverrides(fromFile, fs)
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestApplyFlagOverridesRejectsUnknownPolicy(t *testing.T) {
	fs := newFlagSet("test", flag.ContinueOnError)
	require.NoError(t, fs.Parse([]string{"-policy", "shortest"}))

	_, err := applyFlagOverrides(DefaultRunConfig(), fs)
	assert.ErrorContains(t, err, "-policy")
}
