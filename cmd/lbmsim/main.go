// Command lbmsim runs a lattice Boltzmann case on the best available device.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"time"

	"gonum.org/v1/gonum/floats"

	"fluidlbm/config"
	"fluidlbm/gpu"
	"fluidlbm/server"
	"fluidlbm/simulation"
)

func main() {
	var (
		configFile = flag.String("config", "", "INI config file")
		set        = flag.String("set", "", "Velocity set (D2Q9, D3Q7, D3Q15, D3Q19, D3Q27)")
		grid       = flag.String("grid", "", "Grid dimensions, e.g. 128x64x1")
		nu         = flag.Float64("nu", 0, "Kinematic viscosity in lattice units")
		steps      = flag.Int("steps", 0, "Number of timesteps")
		precision  = flag.String("precision", "", "Storage precision (FP16, FP32, FP64)")
		backend    = flag.String("backend", "", "Compute backend (auto, opencl, host)")
		icFile     = flag.String("ic", "", "Initial condition function source file")
		serve      = flag.String("serve", "", "Stream snapshots over websocket on this address")
		verbose    = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[lbm] ", log.LstdFlags)
	quiet := log.New(io.Discard, "", 0)
	if !*verbose {
		logger.SetFlags(0)
	}

	overrides, err := flagOptions(*set, *grid, *nu, *steps, *precision, *backend, *serve)
	if err != nil {
		log.Fatalf("Invalid flags: %v", err)
	}

	var cfg *config.Config
	if *configFile != "" {
		cfg, err = config.Load(*configFile, overrides...)
	} else {
		cfg, err = config.New(overrides...)
	}
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger.Printf("configuration: %s", cfg)

	platforms, allowCPU, err := buildPlatforms(cfg.Device())
	if err != nil {
		log.Fatalf("Failed to initialize compute backend: %v", err)
	}

	mgrLog := quiet
	if *verbose {
		mgrLog = logger
	}
	mgr, err := gpu.NewManager(gpu.ManagerOptions{
		AllowCPU: allowCPU,
		Platform: cfg.Device().Platform,
		Device:   cfg.Device().Device,
		Logger:   mgrLog,
	}, platforms...)
	if err != nil {
		log.Fatalf("Failed to select a compute device: %v", err)
	}

	engine, err := simulation.New(cfg, mgr, simulation.WithLogger(logger))
	if err != nil {
		mgr.Close()
		log.Fatalf("Failed to create engine: %v", err)
	}
	defer engine.Close()
	fmt.Printf("Device: %s\n", engine.Device())

	if *icFile != "" {
		src, err := os.ReadFile(*icFile)
		if err != nil {
			log.Fatalf("Failed to read initial conditions: %v", err)
		}
		if err := engine.SetInitialConditions(string(src)); err != nil {
			log.Fatalf("Failed to set initial conditions: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if out := cfg.Output(); out.Listen != "" {
		srv := server.New(out.Listen, engine, time.Duration(out.IntervalMs)*time.Millisecond, logger)
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Printf("snapshot server stopped: %v", err)
			}
		}()
	}

	if err := engine.RunContext(ctx, cfg.TotalTimesteps()); err != nil {
		log.Fatalf("Simulation failed: %v", err)
	}

	density, velocity, err := engine.Results()
	if err != nil {
		log.Fatalf("Failed to read results: %v", err)
	}
	stats := engine.Stats()
	fmt.Printf("Steps: %d in %s\n", stats.Steps, stats.Elapsed.Round(time.Millisecond))
	fmt.Printf("Throughput: %.2f MLUps (average %.2f)\n", stats.MLUps, stats.AverageMLUps)
	fmt.Printf("Mean density: %.6f\n", floats.Sum(density)/float64(len(density)))
	fmt.Printf("Max speed: %.6f\n", maxSpeed(velocity, engine.VelocitySet().D))
}

// flagOptions turns explicitly set flags into config overrides, so values
// from a config file are only replaced when the user asked for it.
func flagOptions(set, grid string, nu float64, steps int, precision, backend, serve string) ([]config.Option, error) {
	var opts []config.Option
	var err error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "set":
			opts = append(opts, config.WithVelocitySet(set))
		case "grid":
			dims, perr := config.ParseDims(grid)
			if perr != nil {
				err = perr
				return
			}
			opts = append(opts, config.WithGrid(dims...))
		case "nu":
			opts = append(opts, config.WithViscosity(nu))
		case "steps":
			opts = append(opts, config.WithTimesteps(steps))
		case "precision":
			opts = append(opts, config.WithPrecision(precision))
		case "backend":
			opts = append(opts, config.WithBackend(backend))
		case "serve":
			opts = append(opts, config.WithListen(serve))
		}
	})
	return opts, err
}

func maxSpeed(velocity []float64, d int) float64 {
	if d == 0 || len(velocity) == 0 {
		return 0
	}
	speeds := make([]float64, len(velocity)/d)
	for n := range speeds {
		speeds[n] = math.Sqrt(floats.Dot(velocity[n*d:(n+1)*d], velocity[n*d:(n+1)*d]))
	}
	return floats.Max(speeds)
}
