// Command skinbench deforms a procedural column or the meshes of a glTF file with one or every
// skinning backend for a number of frames, checks the backends against the sequential reference
// and prints the evaluation timings.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-skin/engine"
	"github.com/Carmen-Shannon/oxy-skin/engine/config"
	"github.com/Carmen-Shannon/oxy-skin/engine/gpu"
	"github.com/Carmen-Shannon/oxy-skin/engine/loader"
	"github.com/Carmen-Shannon/oxy-skin/engine/logger"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/Carmen-Shannon/oxy-skin/engine/procedural"
	"github.com/Carmen-Shannon/oxy-skin/engine/profiler"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/skinner"
	"github.com/Carmen-Shannon/oxy-skin/engine/scene"
	"github.com/charmbracelet/log"
)

// options holds the flags that are not part of the configuration file.
type options struct {
	configPath string
	meshPath   string
	watch      bool
	rings      int
	segments   int
	bones      int
	tolerance  float64
}

func main() {
	l := logger.Default()
	if err := run(os.Args[1:], os.Stdout, l); err != nil {
		l.Error("skinbench failed", "err", err)
		os.Exit(1)
	}
}

// newFlagSet binds every flag to cfg and opts.
func newFlagSet(cfg *config.Config, opts *options) *flag.FlagSet {
	fs := flag.NewFlagSet("skinbench", flag.ContinueOnError)
	cfg.BindFlags(fs)
	fs.StringVar(&opts.configPath, "config", opts.configPath, "TOML configuration file")
	fs.StringVar(&opts.meshPath, "mesh", opts.meshPath, "glTF/GLB file to deform instead of the procedural column")
	fs.BoolVar(&opts.watch, "watch", opts.watch, "reload the configuration file when it changes")
	fs.IntVar(&opts.rings, "rings", opts.rings, "procedural column rings")
	fs.IntVar(&opts.segments, "segments", opts.segments, "procedural column segments")
	fs.IntVar(&opts.bones, "bones", opts.bones, "procedural column bones")
	fs.Float64Var(&opts.tolerance, "tolerance", opts.tolerance, "relative tolerance of the gpu comparison")
	return fs
}

// parseArgs resolves the configuration: defaults, then the file named by -config, then flags.
func parseArgs(args []string) (config.Config, options, error) {
	cfg := config.Default()
	opts := options{rings: 64, segments: 32, bones: 8, tolerance: 1e-5}
	if err := newFlagSet(&cfg, &opts).Parse(args); err != nil {
		return config.Config{}, options{}, err
	}
	if opts.configPath != "" {
		fileCfg, err := config.Load(opts.configPath)
		if err != nil {
			return config.Config{}, options{}, err
		}
		cfg = fileCfg
		// Parse again so flags override the file.
		if err := newFlagSet(&cfg, &opts).Parse(args); err != nil {
			return config.Config{}, options{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, options{}, err
	}
	return cfg, opts, nil
}

// backendsFor expands the configured backend name.
func backendsFor(name string) ([]skinner.SkinnerBackendType, error) {
	if name == config.BackendAll {
		return []skinner.SkinnerBackendType{skinner.BackendTypeSequential, skinner.BackendTypeParallel, skinner.BackendTypeGPU}, nil
	}
	b, err := skinner.ParseBackendType(name)
	if err != nil {
		return nil, err
	}
	return []skinner.SkinnerBackendType{b}, nil
}

// sourcedMesh is a mesh and the animation driving it.
type sourcedMesh struct {
	mesh   model.SkinnedMesh
	source scene.FrameSource
}

func loadMeshes(opts options, l *log.Logger) ([]sourcedMesh, error) {
	if opts.meshPath == "" {
		c, err := procedural.NewColumn(
			procedural.WithRings(opts.rings),
			procedural.WithSegments(opts.segments),
			procedural.WithBones(opts.bones),
		)
		if err != nil {
			return nil, err
		}
		return []sourcedMesh{{mesh: c.Mesh, source: c.Frame}}, nil
	}

	meshes, err := loader.NewLoader(loader.BackendTypeGLTF, loader.WithLogger(l)).Load(opts.meshPath)
	if err != nil {
		return nil, err
	}
	out := make([]sourcedMesh, 0, len(meshes))
	for _, m := range meshes {
		out = append(out, sourcedMesh{mesh: m, source: procedural.Wobble(m, 0.3)})
	}
	return out, nil
}

func newDevice(cfg config.Config) (gpu.Device, error) {
	if cfg.GPU.Software {
		return gpu.NewSoftDevice(shader.SoftKernelResolver), nil
	}
	return gpu.NewWGPUDevice(gpu.WithForceFallbackAdapter(cfg.GPU.ForceFallbackAdapter))
}

func run(args []string, stdout io.Writer, l *log.Logger) error {
	cfg, opts, err := parseArgs(args)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := logger.SetLevel(l, cfg.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	backends, err := backendsFor(cfg.Skinning.Backend)
	if err != nil {
		return err
	}
	meshes, err := loadMeshes(opts, l)
	if err != nil {
		return err
	}

	var device gpu.Device
	var library shader.KernelLibrary
	if slices.Contains(backends, skinner.BackendTypeGPU) {
		if device, err = newDevice(cfg); err != nil {
			return fmt.Errorf("gpu device: %w", err)
		}
		defer device.Release()
		if library, err = shader.NewKernelLibrary(shader.WithValidation(cfg.GPU.Validate)); err != nil {
			return fmt.Errorf("kernel library: %w", err)
		}
		l.Info("compute device ready", "device", device.Name(), "variants", len(library.Variants()))
	}

	prof := profiler.NewProfiler(
		profiler.WithInterval(time.Duration(cfg.Engine.ProfileIntervalMS)*time.Millisecond),
		profiler.WithLogger(l),
	)
	workers := cfg.Skinning.Workers
	if workers == 0 {
		workers = max(1, defaultWorkers())
	}
	pool := worker.NewDynamicWorkerPool(workers, cfg.Skinning.QueueSize, 1*time.Second)
	defer skinner.ShutdownPool(pool)

	scenes := make([]scene.Scene, len(backends))
	engineOptions := []engine.EngineBuilderOption{
		engine.WithLogger(l),
		engine.WithProfiler(prof),
		engine.WithProfiling(cfg.Engine.Profiling),
		engine.WithTickRate(float64(cfg.Engine.TickRate)),
		engine.WithFrameLimit(cfg.Engine.Frames),
	}
	for i, backend := range backends {
		s := scene.NewScene(backend.String(),
			scene.WithBackend(backend),
			scene.WithBatchSize(cfg.Skinning.BatchSize),
			scene.WithWorkerPool(pool),
			scene.WithDevice(device),
			scene.WithKernelLibrary(library),
			scene.WithProfiler(prof),
			scene.WithLogger(l),
		)
		defer s.Release()
		for _, sm := range meshes {
			if _, err := s.Add(sm.mesh, sm.source); err != nil {
				return err
			}
		}
		scenes[i] = s
		engineOptions = append(engineOptions, engine.WithScene(i, s))
	}

	eng := engine.NewEngine(engineOptions...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if opts.watch && opts.configPath != "" {
		go func() {
			err := config.Watch(ctx, opts.configPath, l, func(c config.Config) {
				if err := logger.SetLevel(l, c.Log.Level); err != nil {
					l.Warn("ignoring log level", "err", err)
				}
				eng.SetTickRate(float64(c.Engine.TickRate))
				for _, s := range scenes {
					s.SetBatchSize(c.Skinning.BatchSize)
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				l.Warn("config watch stopped", "err", err)
			}
		}()
	}

	l.Info("running", "backends", cfg.Skinning.Backend, "meshes", len(meshes), "frames", cfg.Engine.Frames)
	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if err := compareScenes(scenes, device, opts.tolerance, l); err != nil {
		return err
	}
	writeSummary(stdout, prof.Summary())
	if n := eng.Failures(); n > 0 {
		return fmt.Errorf("%d scene ticks failed", n)
	}
	return nil
}
