package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/jetpwmon/internal/config"
	"codeberg.org/mutker/jetpwmon/internal/errors"
	"codeberg.org/mutker/jetpwmon/internal/logger"
	"codeberg.org/mutker/jetpwmon/internal/monitor"
	"codeberg.org/mutker/jetpwmon/internal/pid"
	"codeberg.org/mutker/jetpwmon/internal/report"
	"codeberg.org/mutker/jetpwmon/internal/sampler"
	"codeberg.org/mutker/jetpwmon/internal/sensor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
)

const latestInterval = time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fmt.Printf("Usage: jetpwmon [flags]\n\n%s", config.Usage())
			os.Exit(0)
		}
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Msg("Config loaded")

	if err := run(cfg); err != nil {
		var coded errors.Error
		if errors.As(err, &coded) {
			logger.FatalWithCode(coded).Msg("jetpwmon failed")
		}
		logger.Fatal().Err(err).Msg("jetpwmon failed")
	}
}

func run(cfg *config.Config) error {
	errFactory := errors.New()

	sources, err := sensor.FromRails(cfg.Rails, cfg.Simulate)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitSensors, err)
	}

	var metrics sampler.Metrics
	if cfg.MetricsListen != "" {
		reg := prometheus.NewRegistry()
		prom, err := sampler.NewPromMetrics(reg)
		if err != nil {
			_ = sensor.CloseAll(sources)
			return errFactory.Wrap(errors.ErrInitApp, err)
		}
		metrics = prom
		defer stopMetrics(serveMetrics(cfg.MetricsListen, reg))
	}

	mon, err := monitor.New(sources,
		monitor.WithFrequency(cfg.Frequency),
		monitor.WithNominalVoltage(cfg.NominalVoltage),
		monitor.WithMetrics(metrics),
		monitor.WithLogger(logger.Default()),
	)
	if err != nil {
		_ = sensor.CloseAll(sources)
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	defer func() {
		if err := mon.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to release sensors")
		}
	}()

	// one writer per report database
	if cfg.Report {
		lock, err := pid.Acquire(pid.PathFor(cfg.ReportDB))
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				logger.Warn().Err(err).Msg("Failed to remove PID file")
			}
		}()
	}

	store, err := report.NewService(cfg.ReportConfig(), logger.Default())
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close report store")
		}
	}()

	logger.Info().
		Strs("sensors", mon.SensorNames()).
		Float64("frequency_hz", mon.SamplingFrequency()).
		Dur("duration", cfg.Duration).
		Msg("Starting power monitor")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if cfg.Duration > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, cfg.Duration)
		defer timeoutCancel()
	}

	startedAt := time.Now()
	if err := mon.StartSampling(); err != nil {
		return errFactory.Wrap(errors.ErrMainLoop, err)
	}

	loop(ctx, cfg, mon)

	mon.StopSampling()
	endedAt := time.Now()

	final := mon.Statistics()
	if cfg.JSON {
		if err := renderJSON(os.Stdout, final); err != nil {
			logger.Error().Err(err).Msg("Failed to encode statistics")
		}
	} else {
		renderStats(os.Stdout, "Final statistics", final)
	}

	saveReport(store, &report.Session{
		StartedAt:   startedAt,
		EndedAt:     endedAt,
		FrequencyHz: mon.SamplingFrequency(),
		Health:      mon.Health(),
		Stats:       final,
	})
	logger.Info().Msg("Exiting...")

	return nil
}

func loop(ctx context.Context, cfg *config.Config, mon *monitor.Monitor) {
	latestTicker := time.NewTicker(latestInterval)
	defer latestTicker.Stop()
	statsTicker := time.NewTicker(cfg.StatsInterval)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-latestTicker.C:
			if !cfg.JSON {
				renderLatest(os.Stdout, mon.LatestData())
			}
		case <-statsTicker.C:
			snap := mon.Statistics()
			if cfg.JSON {
				if err := renderJSON(os.Stdout, snap); err != nil {
					logger.Error().Err(err).Msg("Failed to encode statistics")
				}
				continue
			}
			renderStats(os.Stdout, "Statistics", snap)

			h := mon.Health()
			logger.Debug().
				Uint64("ticks", h.Ticks).
				Uint64("overruns", h.Overruns).
				Uint64("read_failures", h.ReadFailures).
				Msg("Sampler health")
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return srv
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func saveReport(store report.Store, session *report.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := store.Save(ctx, session); err != nil {
		logger.Error().Err(err).Str("error_code", string(errors.ErrSaveReport)).Msg("Failed to save session report")
	}
}

func stopMetrics(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to stop metrics server")
	}
}
