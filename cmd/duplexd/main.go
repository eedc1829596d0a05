package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/avnsound/duplexd/internal/duplex"
	"github.com/avnsound/duplexd/pkg/config"
	"github.com/avnsound/duplexd/pkg/database"
	"github.com/avnsound/duplexd/pkg/logger"
	"github.com/avnsound/duplexd/pkg/metrics"
	"github.com/avnsound/duplexd/pkg/mqtt"
	"github.com/avnsound/duplexd/pkg/web"
	"github.com/google/uuid"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	periodFlag := flag.Uint("period", 0, "Override global.period (scheduling quantum, in frames)")
	repetitionsFlag := flag.Uint("repetitions", 0, "Override global.repetitions (total per-channel completions)")
	memoryMapFlag := flag.Bool("memory-map", false, "Override global.memory_map (request DMA-mapped transfer)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("duplexd %s\n", version)
		fmt.Printf("Git Commit: %s\n", gitCommit)
		fmt.Printf("Built: %s\n", buildTime)
		os.Exit(0)
	}

	log := logger.New(logger.Config{Level: "info", Format: "text"})
	log.Info("Starting duplexd",
		logger.String("version", version),
		logger.String("commit", gitCommit),
		logger.String("build_time", buildTime))

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Error("Failed to load configuration", logger.Error(err))
		os.Exit(1)
	}

	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	if explicit["period"] {
		cfg.Global.Period = *periodFlag
	}
	if explicit["repetitions"] {
		cfg.Global.Repetitions = *repetitionsFlag
	}
	if explicit["memory-map"] {
		cfg.Global.MemoryMap = *memoryMapFlag
	}

	if *validateOnly {
		log.Info("Configuration is valid")
		os.Exit(0)
	}

	log.Info("Configuration loaded successfully", logger.String("config_file", *configFile))

	log = logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log.Debug("Debug logging enabled")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup

	metricsCollector := metrics.NewCollector()

	db, err := database.NewDB(database.Config{
		Path:          cfg.Database.Path,
		BusyTimeoutMS: cfg.Database.BusyTimeoutMS,
		RetentionDays: cfg.Database.RetentionDays,
	}, log.WithComponent("database"))
	if err != nil {
		log.Error("Failed to initialize database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	runRepo := database.NewRunRepository(db.GetDB())
	log.Info("Database initialized")

	if cfg.Metrics.Enabled && cfg.Metrics.Prometheus.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metricsServer := metrics.NewPrometheusServer(
				metrics.PrometheusConfig{
					Enabled: cfg.Metrics.Prometheus.Enabled,
					Port:    cfg.Metrics.Prometheus.Port,
					Path:    cfg.Metrics.Prometheus.Path,
				},
				metricsCollector,
				log.WithComponent("metrics"),
			)
			if err := metricsServer.Start(ctx); err != nil && err != context.Canceled {
				log.Error("Prometheus metrics server error", logger.Error(err))
			}
		}()
		log.Info("Prometheus metrics server started",
			logger.Int("port", cfg.Metrics.Prometheus.Port),
			logger.String("path", cfg.Metrics.Prometheus.Path))
	}

	var mqttPublisher *mqtt.Publisher
	if cfg.MQTT.Enabled {
		mqttPublisher = mqtt.New(
			mqtt.Config{
				Enabled:     cfg.MQTT.Enabled,
				Broker:      cfg.MQTT.Broker,
				TopicPrefix: cfg.MQTT.TopicPrefix,
				ClientID:    cfg.MQTT.ClientID,
				Username:    cfg.MQTT.Username,
				Password:    cfg.MQTT.Password,
				QoS:         cfg.MQTT.QoS,
				Retained:    cfg.MQTT.Retained,
			},
			log.WithComponent("mqtt"),
		)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mqttPublisher.Start(ctx); err != nil && err != context.Canceled {
				log.Error("MQTT publisher error", logger.Error(err))
			}
		}()
		log.Info("MQTT publisher started",
			logger.String("broker", cfg.MQTT.Broker),
			logger.String("topic_prefix", cfg.MQTT.TopicPrefix))
	}

	var webServer *web.Server
	if cfg.Web.Enabled {
		webServer = web.NewServer(cfg.Web, log.WithComponent("web")).WithRunRepo(runRepo)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := webServer.Start(ctx); err != nil && err != context.Canceled {
				log.Error("Web server error", logger.Error(err))
			}
		}()
		log.Info("Web server started",
			logger.String("host", cfg.Web.Host),
			logger.Int("port", cfg.Web.Port))
	}

	readDevice := duplex.NewSimDevice("read", true, cfg.Read.SampleRate, cfg.Read.FrameSize, cfg.Read.Stepping, cfg.Read.CanMemoryMap)
	writeDevice := duplex.NewSimDevice("write", false, cfg.Write.SampleRate, cfg.Write.FrameSize, cfg.Write.Stepping, cfg.Write.CanMemoryMap)

	runID := uuid.NewString()
	runLog := log.WithComponent("duplex")
	startTime := time.Now()
	metricsCollector.RunStarted()

	var lastState duplex.IterationState
	var gapResets, lateWakeups int

	hooks := duplex.Hooks{
		OnIteration: func(state duplex.IterationState) {
			lastState = state
			metricsCollector.SetCorrection(state.ReadCorrection, state.WriteCorrection)
			metricsCollector.SetBalance(state.ReadBalance, state.WriteBalance)
			metricsCollector.PeriodCompleted("read")
			metricsCollector.PeriodCompleted("write")
			if webServer != nil {
				webServer.GetAPI().SetStatus(web.StatusDTO{
					RunID:           runID,
					Running:         true,
					SyncFrames:      state.SyncFrames,
					ReadBalance:     state.ReadBalance,
					WriteBalance:    state.WriteBalance,
					ReadCorrection:  state.ReadCorrection,
					WriteCorrection: state.WriteCorrection,
					Finished:        state.Finished,
					Repetitions:     cfg.Global.Repetitions,
				})
				webServer.GetHub().BroadcastIteration(web.IterationPayload{
					SyncFrames:      state.SyncFrames,
					ReadBalance:     state.ReadBalance,
					WriteBalance:    state.WriteBalance,
					ReadCorrection:  state.ReadCorrection,
					WriteCorrection: state.WriteCorrection,
					Gap:             state.Gap,
					Finished:        state.Finished,
				})
			}
		},
		OnGapReset: func(gapFrames int64) {
			gapResets++
			metricsCollector.GapReset(gapFrames)
			if webServer != nil {
				webServer.GetHub().BroadcastGapReset(gapFrames)
			}
			if mqttPublisher != nil {
				_ = mqttPublisher.PublishGapReset(mqtt.GapResetEvent{GapFrames: gapFrames, Timestamp: time.Now()})
			}
		},
		OnLateWakeup: func(extraFrames int64) {
			lateWakeups++
			metricsCollector.LateWakeup(extraFrames)
			if webServer != nil {
				webServer.GetHub().BroadcastLateWakeup(extraFrames)
			}
			if mqttPublisher != nil {
				_ = mqttPublisher.PublishLateWakeup(mqtt.LateWakeupEvent{ExtraFrames: extraFrames, Timestamp: time.Now()})
			}
		},
		OnMismatch: func(channel string, scheduledEnd, actual int64) {
			metricsCollector.ScheduleMismatch(channel)
		},
	}

	run := duplex.New(
		duplex.Config{
			Period:         cfg.Global.Period,
			Repetitions:    cfg.Global.Repetitions,
			MemoryMap:      cfg.Global.MemoryMap,
			SimDelayEvery:  cfg.Global.SimDelayEvery,
			SimDelayFrames: cfg.Global.SimDelayFrames,
		},
		readDevice, writeDevice,
		duplex.WithLogger[*duplex.SimDevice, *duplex.SimDevice](runLog),
		duplex.WithHooks[*duplex.SimDevice, *duplex.SimDevice](hooks),
	)

	var runSucceeded atomic.Bool

	wg.Add(1)
	go func() {
		defer wg.Done()
		ok, runErr := run.ReadWrite(ctx)
		runSucceeded.Store(ok)
		endTime := time.Now()
		metricsCollector.RunFinished(ok)

		record := &database.RunRecord{
			RunID:             runID,
			Period:            cfg.Global.Period,
			Repetitions:       cfg.Global.Repetitions,
			SampleRate:        cfg.Read.SampleRate,
			Stepping:          cfg.Read.Stepping,
			MemoryMap:         cfg.Global.MemoryMap,
			Completed:         lastState.Finished,
			Success:           ok,
			GapResets:         gapResets,
			LateWakeups:       lateWakeups,
			FinalReadCorrect:  lastState.ReadCorrection,
			FinalWriteCorrect: lastState.WriteCorrection,
			StartTime:         startTime,
			EndTime:           endTime,
		}
		if runErr != nil {
			record.FailureReason = runErr.Error()
		}
		if err := runRepo.Create(record); err != nil {
			log.Error("Failed to persist run record", logger.Error(err))
		}

		if webServer != nil {
			webServer.GetHub().BroadcastRunCompleted(runID, record.Completed, cfg.Global.Repetitions, ok)
			webServer.GetAPI().SetStatus(web.StatusDTO{RunID: runID, Running: false, Repetitions: cfg.Global.Repetitions})
		}
		if mqttPublisher != nil {
			_ = mqttPublisher.PublishRunCompleted(mqtt.RunCompletedEvent{
				RunID:       runID,
				Completed:   record.Completed,
				Repetitions: cfg.Global.Repetitions,
				Success:     ok,
			})
		}

		if runErr != nil && runErr != context.Canceled {
			log.Error("Loop driver stopped with error", logger.Error(runErr))
		} else {
			log.Info("Loop driver finished", logger.Bool("success", ok))
		}
		cancel()
	}()

	log.Info("duplexd initialized", logger.String("server_name", cfg.Server.Name), logger.String("run_id", runID))

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", logger.String("signal", sig.String()))
	case <-ctx.Done():
		log.Info("Loop driver run ended, shutting down")
	}

	cancel()

	if mqttPublisher != nil {
		mqttPublisher.Stop()
	}

	wg.Wait()

	log.Info("duplexd stopped")

	if !runSucceeded.Load() {
		os.Exit(1)
	}
}
