package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/echoflaresat/orbitview/config"
	"github.com/echoflaresat/orbitview/logging"
	"github.com/echoflaresat/orbitview/loop"
	"github.com/echoflaresat/orbitview/metrics"
	"github.com/echoflaresat/orbitview/orbit"
	"github.com/echoflaresat/orbitview/preview"
	"github.com/echoflaresat/orbitview/texture"
	"golang.org/x/sync/errgroup"
)

type flags struct {
	configPath    *string
	serve         *bool
	frames        *int
	out           *string
	fps           *float64
	width, height *int
	supersample   *int
	workers       *int
	showHelp      *bool
}

func defineFlags() flags {
	return flags{
		configPath: flag.String("config", "", "TOML file overriding the default scene"),
		serve:      flag.Bool("serve", false, "Run the live preview server instead of writing frames"),

		frames: flag.Int("frames", 120, "Number of frames to write in headless mode"),
		out:    flag.String("out", "frames", "Output directory for headless frames"),
		fps:    flag.Float64("fps", 0, "Frames per second; 0 keeps the configured rate"),

		width:       flag.Int("width", 0, "Primary surface width; 0 keeps the configured size"),
		height:      flag.Int("height", 0, "Primary surface height; 0 keeps the configured size"),
		supersample: flag.Int("supersample", 0, "Supersampling factor; 0 keeps the configured value"),
		workers:     flag.Int("workers", -1, "Rows traced in parallel; 0 means one per CPU, -1 keeps the configured value"),

		showHelp: flag.Bool("h", false, "Show this help message"),
	}
}

func printHelp() {
	fmt.Fprintf(os.Stderr, `orbitview - animated sun, earth and moon diagram

Usage:
  %[1]s [options]

Environment:
  ORBITVIEW_HTTP_ADDR   preview server host:port (default localhost:8080)
  LOG_LEVEL, LOG_FORMAT logging level (debug|info|warn|error) and format (text|json)

`, os.Args[0])

	printGroup("Scene", []string{"config"})
	printGroup("Mode", []string{"serve", "frames", "out"})
	printGroup("Rendering Options", []string{"fps", "width", "height", "supersample", "workers"})
	printGroup("Misc", []string{"h"})
}

func printGroup(title string, keys []string) {
	fmt.Fprintf(os.Stderr, "%s:\n", title)
	for _, name := range keys {
		if f := flag.Lookup(name); f != nil {
			fmt.Fprintf(os.Stderr, "  -%-12s %s (default %q)\n", f.Name, f.Usage, f.DefValue)
		}
	}
	fmt.Fprintln(os.Stderr)
}

func main() {
	f := defineFlags()
	flag.Usage = printHelp
	flag.Parse()

	if *f.showHelp {
		printHelp()
		return
	}

	cfg, err := loadConfig(f)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, logger, cfg, f)
	stop()

	if err != nil {
		var assetErr *texture.AssetLoadError
		if errors.As(err, &assetErr) {
			logger.Error("could not load texture", "path", assetErr.Path, "error", assetErr.Err)
		} else {
			logger.Error("orbitview failed", "error", err)
		}
		os.Exit(1)
	}
}

func loadConfig(f flags) (config.Config, error) {
	cfg, err := config.Load(*f.configPath)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return cfg, err
	}

	if *f.fps > 0 {
		cfg.Loop.FPS = *f.fps
	}
	if *f.width > 0 {
		cfg.Primary.Width = *f.width
	}
	if *f.height > 0 {
		cfg.Primary.Height = *f.height
	}
	if *f.supersample > 0 {
		cfg.Render.Supersample = *f.supersample
	}
	if *f.workers >= 0 {
		cfg.Render.Workers = *f.workers
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, logger *slog.Logger, cfg config.Config, f flags) error {
	start := time.Now()
	tex, err := orbit.LoadTextures(ctx, cfg)
	if err != nil {
		return err
	}
	defer tex.Close()
	logger.Debug("textures loaded", "duration_ms", time.Since(start).Milliseconds())

	sys, err := orbit.Build(cfg, tex)
	if err != nil {
		return err
	}

	if *f.serve {
		return serve(ctx, logger, cfg, sys)
	}
	return writeFrames(ctx, logger, cfg, sys, *f.frames, *f.out)
}

func frameFunc(sys *orbit.System) loop.FrameFunc {
	return func(ctx context.Context, elapsed time.Duration) error {
		_, err := sys.Frame(ctx, elapsed.Seconds())
		return err
	}
}

// writeFrames renders a fixed number of frames on a simulated clock and
// saves both surfaces of each as PNG.
func writeFrames(ctx context.Context, logger *slog.Logger, cfg config.Config, sys *orbit.System, frames int, out string) error {
	if frames <= 0 {
		return fmt.Errorf("-frames must be positive, got %d", frames)
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}

	clock := loop.NewStepClock(time.Unix(0, 0), loop.StepForFPS(cfg.Loop.FPS))
	l := loop.New(frameFunc(sys), loop.Options{
		Clock:     clock,
		Ticker:    clock,
		MaxFrames: uint64(frames),
		Logger:    logger,
	})
	l.OnFrame(func(_ context.Context, info loop.FrameInfo) error {
		n := info.Seq - 1
		primary := filepath.Join(out, fmt.Sprintf("primary_%04d.png", n))
		satellite := filepath.Join(out, fmt.Sprintf("satellite_%04d.png", n))
		if err := writePNG(primary, sys.Primary.Frame().Image); err != nil {
			return err
		}
		if err := writePNG(satellite, sys.Secondary.Frame().Image); err != nil {
			return err
		}
		logger.Info("frame written", "seq", info.Seq, "t", info.Elapsed.Seconds(), "render_ms", info.Duration.Milliseconds())
		return nil
	})

	return l.Run(ctx)
}

// serve runs the live animation behind the preview server until ctx ends.
func serve(ctx context.Context, logger *slog.Logger, cfg config.Config, sys *orbit.System) error {
	col, err := metrics.NewCollector(nil)
	if err != nil {
		return err
	}

	l := loop.New(frameFunc(sys), loop.Options{
		Ticker:         loop.NewTicker(cfg.Loop.FPS),
		RebaseOnResume: cfg.Loop.RebaseOnResume,
		Logger:         logger,
	})
	srv, err := preview.NewServer(preview.Options{
		Addr:      cfg.Addr(),
		Animation: preview.LoopAnimation{Loop: l, System: sys},
		Metrics:   col,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	l.OnFrame(func(_ context.Context, info loop.FrameInfo) error {
		col.ObserveFrame(info, preview.SurfacePrimary, preview.SurfaceSatellite)
		srv.Publish(info)
		return nil
	})
	col.SetState(loop.Running)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return l.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("starting server", "addr", cfg.Addr(), "fps", cfg.Loop.FPS)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.CloseClients()
		return srv.HTTPServer().Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return (&png.Encoder{CompressionLevel: png.BestSpeed}).Encode(f, img)
}
