// Package config holds every tunable of the orbit diagram. Default reproduces
// the stock scene; a TOML file, the environment and command line flags may
// override it, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/echoflaresat/orbitview/colors"
	"github.com/echoflaresat/orbitview/vectors"
	"github.com/pelletier/go-toml/v2"
)

// Color is a colors.Color4 that reads and writes as "#rrggbb" or a CSS name.
type Color struct {
	colors.Color4
}

func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := colors.Parse(string(text))
	if err != nil {
		return err
	}
	c.Color4 = parsed
	return nil
}

func (c Color) MarshalText() ([]byte, error) {
	n := c.ToNRGBA()
	return []byte(fmt.Sprintf("#%02x%02x%02x", n.R, n.G, n.B)), nil
}

func hex(v uint32) Color {
	return Color{colors.FromHex(v)}
}

// Vec is an [x, y, z] triple.
type Vec [3]float64

func (v Vec) Vec3() vectors.Vec3 {
	return vectors.New(v[0], v[1], v[2])
}

type CameraConfig struct {
	FOV      float64 `toml:"fov"`
	Near     float64 `toml:"near"`
	Far      float64 `toml:"far"`
	Position Vec     `toml:"position"`
	LookAt   Vec     `toml:"look_at"`
}

type SatelliteConfig struct {
	FOV    float64 `toml:"fov"`
	Aspect float64 `toml:"aspect"`
	Near   float64 `toml:"near"`
	Far    float64 `toml:"far"`
	// Offset from the moon before the first frame places the camera.
	Offset Vec `toml:"offset"`
}

type SurfaceConfig struct {
	Width      int   `toml:"width"`
	Height     int   `toml:"height"`
	ClearColor Color `toml:"clear_color"`
}

type LightConfig struct {
	Color     Color   `toml:"color"`
	Intensity float64 `toml:"intensity"`
	Position  Vec     `toml:"position"`
}

type BodyConfig struct {
	Scale    float64 `toml:"scale"`
	Position Vec     `toml:"position"`
	Texture  string  `toml:"texture"`
}

type BuildingConfig struct {
	Color    Color `toml:"color"`
	Position Vec   `toml:"position"`
}

type RingConfig struct {
	HalfWidth float64   `toml:"half_width"`
	Scales    []float64 `toml:"scales"`
	Color     Color     `toml:"color"`
	Opacity   float64   `toml:"opacity"`
}

type LoopConfig struct {
	FPS float64 `toml:"fps"`
	// RebaseOnResume moves the clock origin forward by the paused interval.
	RebaseOnResume bool `toml:"rebase_on_resume"`
}

type RenderConfig struct {
	Supersample int `toml:"supersample"`
	Workers     int `toml:"workers"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Config struct {
	Camera           CameraConfig     `toml:"camera"`
	Satellite        SatelliteConfig  `toml:"satellite_camera"`
	Primary          SurfaceConfig    `toml:"primary_surface"`
	Secondary        SurfaceConfig    `toml:"secondary_surface"`
	MaterialColor    Color            `toml:"material_color"`
	DirectionalLight LightConfig      `toml:"directional_light"`
	AmbientLight     LightConfig      `toml:"ambient_light"`
	Sun              BodyConfig       `toml:"sun"`
	Earth            BodyConfig       `toml:"earth"`
	Moon             BodyConfig       `toml:"moon"`
	BuildingSize     float64          `toml:"building_size"`
	Buildings        []BuildingConfig `toml:"buildings"`
	Rings            RingConfig       `toml:"rings"`
	Loop             LoopConfig       `toml:"loop"`
	Render           RenderConfig     `toml:"render"`
	Server           ServerConfig     `toml:"server"`
	Log              LogConfig        `toml:"log"`
}

// Default returns the stock diagram.
func Default() Config {
	return Config{
		Camera: CameraConfig{
			FOV:      60,
			Near:     0.1,
			Far:      30.0,
			Position: Vec{0.0, 1.0, 10.0},
			LookAt:   Vec{0.0, 0.0, 0.0},
		},
		Satellite: SatelliteConfig{
			FOV:    70,
			Aspect: 1,
			Near:   0.1,
			Far:    30.0,
			Offset: Vec{0.0, 1.0, 0.0},
		},
		Primary: SurfaceConfig{
			Width:      1280,
			Height:     720,
			ClearColor: hex(0x000000),
		},
		Secondary: SurfaceConfig{
			Width:      300,
			Height:     300,
			ClearColor: hex(0x000000),
		},
		MaterialColor: hex(0xffffff),
		DirectionalLight: LightConfig{
			Color:     hex(0xffffff),
			Intensity: 1.0,
			Position:  Vec{1.0, 1.0, 1.0},
		},
		AmbientLight: LightConfig{
			Color:     hex(0xffffff),
			Intensity: 0.2,
		},
		Sun: BodyConfig{
			Scale:   1.0,
			Texture: "assets/sun.jpg",
		},
		Earth: BodyConfig{
			Scale:    0.36,
			Position: Vec{2.75, 0.0, 0.0},
			Texture:  "assets/earth.jpg",
		},
		Moon: BodyConfig{
			Scale:    0.18,
			Position: Vec{0.0, 1.0, 0.0}, // relative to earth
			Texture:  "assets/moon.jpg",
		},
		BuildingSize: 0.2,
		Buildings: []BuildingConfig{
			{Color: hex(0x008000), Position: Vec{1.1, 0.0, 0.0}},
			{Color: hex(0xffc0cb), Position: Vec{0.0, 1.1, 0.0}},
		},
		Rings: RingConfig{
			HalfWidth: 0.01,
			Scales:    []float64{1.0, 0.8, 0.6},
			Color:     hex(0xffffff),
			Opacity:   0.3,
		},
		Loop: LoopConfig{
			FPS: 60,
		},
		Render: RenderConfig{
			Supersample: 1,
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load returns Default overlaid with the TOML file at path, if any. Keys
// absent from the file keep their defaults; unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment: ORBITVIEW_HTTP_ADDR
// (host:port), LOG_LEVEL and LOG_FORMAT.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("ORBITVIEW_HTTP_ADDR"); v != "" {
		host, port, err := net.SplitHostPort(v)
		if err != nil {
			return fmt.Errorf("ORBITVIEW_HTTP_ADDR: %w", err)
		}
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("ORBITVIEW_HTTP_ADDR port: %w", err)
		}
		c.Server.Host, c.Server.Port = host, n
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	return nil
}

// Addr is the preview server listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Validate reports every out-of-range setting at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	for name, cam := range map[string]struct{ fov, near, far float64 }{
		"camera":           {c.Camera.FOV, c.Camera.Near, c.Camera.Far},
		"satellite_camera": {c.Satellite.FOV, c.Satellite.Near, c.Satellite.Far},
	} {
		check(cam.fov > 0 && cam.fov < 180, "%s.fov must be in (0, 180), got %v", name, cam.fov)
		check(cam.near > 0, "%s.near must be positive, got %v", name, cam.near)
		check(cam.far > cam.near, "%s.far must exceed near, got %v", name, cam.far)
	}
	check(c.Satellite.Aspect > 0, "satellite_camera.aspect must be positive, got %v", c.Satellite.Aspect)

	for name, s := range map[string]SurfaceConfig{"primary_surface": c.Primary, "secondary_surface": c.Secondary} {
		check(s.Width > 0 && s.Height > 0, "%s must have a positive size, got %dx%d", name, s.Width, s.Height)
	}

	for name, b := range map[string]BodyConfig{"sun": c.Sun, "earth": c.Earth, "moon": c.Moon} {
		check(b.Scale > 0, "%s.scale must be positive, got %v", name, b.Scale)
		check(b.Texture != "", "%s.texture is required", name)
	}

	check(c.BuildingSize > 0, "building_size must be positive, got %v", c.BuildingSize)
	check(c.Rings.HalfWidth > 0, "rings.half_width must be positive, got %v", c.Rings.HalfWidth)
	check(c.Rings.Opacity >= 0 && c.Rings.Opacity <= 1, "rings.opacity must be in [0, 1], got %v", c.Rings.Opacity)
	for i, s := range c.Rings.Scales {
		check(s > 0, "rings.scales[%d] must be positive, got %v", i, s)
	}

	check(c.DirectionalLight.Intensity >= 0, "directional_light.intensity must not be negative")
	check(c.AmbientLight.Intensity >= 0, "ambient_light.intensity must not be negative")

	check(c.Loop.FPS > 0, "loop.fps must be positive, got %v", c.Loop.FPS)
	check(c.Render.Supersample >= 1, "render.supersample must be at least 1, got %d", c.Render.Supersample)
	check(c.Render.Workers >= 0, "render.workers must not be negative, got %d", c.Render.Workers)
	check(c.Server.Port >= 0 && c.Server.Port <= 65535, "server.port out of range: %d", c.Server.Port)

	return errors.Join(errs...)
}
