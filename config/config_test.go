package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/echoflaresat/orbitview/colors"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 60.0, cfg.Camera.FOV)
	assert.Equal(t, Vec{0, 1, 10}, cfg.Camera.Position)
	assert.Equal(t, 300, cfg.Secondary.Width)
	assert.Equal(t, 300, cfg.Secondary.Height)
	assert.Equal(t, []float64{1.0, 0.8, 0.6}, cfg.Rings.Scales)
	assert.Equal(t, colors.FromHex(0x008000), cfg.Buildings[0].Color.Color4)
	assert.Equal(t, "localhost:8080", cfg.Addr())
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orbitview.toml")
	data := `
material_color = "pink"

[primary_surface]
width = 640
height = 480

[rings]
scales = [1.0, 0.5]
opacity = 0.5

[loop]
fps = 30
rebase_on_resume = true
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 640, cfg.Primary.Width)
	assert.Equal(t, 480, cfg.Primary.Height)
	assert.Equal(t, colors.FromHex(0xffc0cb), cfg.MaterialColor.Color4)
	assert.Equal(t, []float64{1.0, 0.5}, cfg.Rings.Scales)
	assert.Equal(t, 0.5, cfg.Rings.Opacity)
	assert.Equal(t, 30.0, cfg.Loop.FPS)
	assert.True(t, cfg.Loop.RebaseOnResume)

	// untouched keys keep their defaults
	assert.Equal(t, 0.01, cfg.Rings.HalfWidth)
	assert.Equal(t, 300, cfg.Secondary.Width)
	assert.Equal(t, 0.36, cfg.Earth.Scale)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte(`material_color = "chartreuse-ish"`), 0o644))
	_, err = Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`[camera`), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orbitview.toml")
	require.NoError(t, os.WriteFile(path, []byte("[rings]\nsegments = 64\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)

	var strict *toml.StrictMissingError
	assert.ErrorAs(t, err, &strict)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"fov", func(c *Config) { c.Camera.FOV = 180 }},
		{"near", func(c *Config) { c.Satellite.Near = 0 }},
		{"far before near", func(c *Config) { c.Camera.Far = 0.05 }},
		{"primary size", func(c *Config) { c.Primary.Width = 0 }},
		{"secondary size", func(c *Config) { c.Secondary.Height = -1 }},
		{"body scale", func(c *Config) { c.Moon.Scale = 0 }},
		{"texture", func(c *Config) { c.Sun.Texture = "" }},
		{"ring opacity", func(c *Config) { c.Rings.Opacity = 1.5 }},
		{"ring scale", func(c *Config) { c.Rings.Scales = []float64{1, -1} }},
		{"fps", func(c *Config) { c.Loop.FPS = 0 }},
		{"supersample", func(c *Config) { c.Render.Supersample = 0 }},
		{"port", func(c *Config) { c.Server.Port = 70000 }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := Default()
			c.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Loop.FPS = 0
	cfg.Render.Supersample = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loop.fps")
	assert.Contains(t, err.Error(), "render.supersample")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"ORBITVIEW_HTTP_ADDR": "0.0.0.0:9090",
		"LOG_LEVEL":           "debug",
	}
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(func(k string) string { return env[k] }))
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	env["ORBITVIEW_HTTP_ADDR"] = "no-port"
	assert.Error(t, cfg.ApplyEnv(func(k string) string { return env[k] }))
}

func TestColorText(t *testing.T) {
	var c Color
	require.NoError(t, c.UnmarshalText([]byte("#ff0000")))
	assert.Equal(t, colors.FromHex(0xff0000), c.Color4)

	out, err := c.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "#ff0000", string(out))
}
