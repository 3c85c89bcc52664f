package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crewsim"
	"crewsim/broadcast"
	"crewsim/geo"
	"crewsim/internal/config"
	"crewsim/observer"
	"crewsim/provider/openaicompat"
	"crewsim/store/sqlite"
)

func main() {
	// 1. Load config
	cfg := config.Load(os.Getenv("CREWSIM_CONFIG"))
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Observability (opt-in)
	tracer := crewsim.Tracer(nil)
	if cfg.Observer.Enabled {
		shutdown, err := observer.Init(ctx)
		if err != nil {
			logger.Error("observer init failed", "error", err)
			os.Exit(1)
		}
		defer shutdown(context.Background())
		tracer = observer.NewTracer()
	}

	// 3. World geometry
	world := geo.DefaultMap()
	if cfg.Server.MapPath != "" {
		data, err := os.ReadFile(cfg.Server.MapPath)
		if err != nil {
			logger.Error("read map", "path", cfg.Server.MapPath, "error", err)
			os.Exit(1)
		}
		if world, err = geo.LoadMap(data); err != nil {
			logger.Error("parse map", "path", cfg.Server.MapPath, "error", err)
			os.Exit(1)
		}
	}

	// 4. Reasoning provider; nil runs headless on canned fallbacks.
	var provider crewsim.Provider
	if cfg.LLM.BaseURL != "" {
		provider = openaicompat.NewProvider(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)
		logger.Info("reasoning endpoint configured", "baseURL", cfg.LLM.BaseURL, "model", cfg.LLM.Model)
	} else {
		logger.Info("no reasoning endpoint, running headless")
	}

	// 5. Simulation
	simCfg := crewsim.Config{
		NumAgents:                cfg.Simulation.NumAgents,
		TickHz:                   cfg.Simulation.TickHz,
		ReasoningTimeout:         time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		Temperature:              cfg.LLM.Temperature,
		MaxTokens:                cfg.LLM.MaxTokens,
		BaseThoughtCooldown:      time.Duration(cfg.Simulation.ThoughtCooldownSeconds) * time.Second,
		BaseSpeechCooldown:       time.Duration(cfg.Simulation.SpeechCooldownSeconds) * time.Second,
		RandomThoughtIntervalMin: time.Duration(cfg.Simulation.RandomThoughtMinSeconds) * time.Second,
		RandomThoughtIntervalMax: time.Duration(cfg.Simulation.RandomThoughtMaxSeconds) * time.Second,
		SpeechRange:              cfg.Simulation.SpeechRange,
		ClosePassDistance:        cfg.Simulation.ClosePassDistance,
		VisionRadius:             cfg.Simulation.VisionRadius,
		ActionRadius:             cfg.Simulation.ActionRadius,
		Seed:                     cfg.Simulation.Seed,
	}
	opts := []crewsim.SimOption{
		crewsim.WithMap(world),
		crewsim.WithProvider(provider),
		crewsim.WithLogger(logger),
	}
	if tracer != nil {
		opts = append(opts, crewsim.WithTracer(tracer))
	}
	sim := crewsim.NewSimulation(simCfg, opts...)

	// 6. Trace persistence (opt-in)
	var traceStore *sqlite.Store
	if cfg.Traces.Path != "" {
		traceStore = sqlite.New(cfg.Traces.Path, sqlite.WithLogger(logger))
		if err := traceStore.Init(ctx); err != nil {
			logger.Error("trace store init failed", "error", err)
			os.Exit(1)
		}
		defer traceStore.Close()
	}

	// 7. Broadcast hub
	hub := broadcast.NewHub(
		broadcast.WithHubLogger(logger),
		broadcast.WithTickHz(simCfg.TickHz))
	go hub.Run(ctx.Done())

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-sim.Snapshots():
				hub.Publish(snap)
			case ev := <-sim.Traces():
				hub.PublishTrace(ev)
				if traceStore != nil {
					if err := traceStore.SaveTrace(ctx, ev); err != nil {
						logger.Warn("trace save failed", "error", err)
					}
				}
			}
		}
	}()

	// 8. HTTP server
	mux := http.NewServeMux()
	mux.Handle(cfg.Server.BroadcastPath, hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		sim.Stop()
	}()

	go sim.Start(ctx)

	logger.Info("server listening", "addr", cfg.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
