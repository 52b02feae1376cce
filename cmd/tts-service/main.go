// main package for the tts-service
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-job-service/internal/api"
	"github.com/book-expert/tts-job-service/internal/config"
	"github.com/book-expert/tts-job-service/internal/core"
	"github.com/book-expert/tts-job-service/internal/jobs"
	"github.com/book-expert/tts-job-service/internal/metrics"
	"github.com/book-expert/tts-job-service/internal/notify"
	"github.com/book-expert/tts-job-service/internal/objectstore"
	"github.com/book-expert/tts-job-service/internal/pipeline"
	"github.com/book-expert/tts-job-service/internal/tts"
	"github.com/book-expert/tts-job-service/internal/tts/audio"
	"github.com/book-expert/tts-job-service/internal/voices"
	"github.com/book-expert/tts-job-service/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	readHeaderTimeout = 15 * time.Second
	idleTimeout       = 60 * time.Second
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

// service holds everything run has to release on the way out.
type service struct {
	server         *http.Server
	pool           *worker.Pool
	natsConnection *nats.Conn
}

func loadConfig(configPath string, bootstrapLog *logger.Logger) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}

	return config.Load(bootstrapLog)
}

// buildStore connects the artifact store selected by the configuration.
func buildStore(cfg *config.Config, natsConnection *nats.Conn) (core.ArtifactStore, error) {
	if cfg.Storage.Backend != config.StorageNATS {
		store, err := objectstore.NewDir(cfg.Storage.OutputDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open output directory: %w", err)
		}

		return store, nil
	}

	jetStreamContext, err := natsConnection.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	store, err := objectstore.NewNats(jetStreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open object store: %w", err)
	}

	return store, nil
}

// buildNotifier combines the configured completion targets.
func buildNotifier(cfg *config.Config, natsConnection *nats.Conn) (core.Notifier, error) {
	var notifiers notify.Multi

	if cfg.Notify.WebhookURL != "" {
		webhook, err := notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Timeout())
		if err != nil {
			return nil, err
		}

		notifiers = append(notifiers, webhook)
	}

	if cfg.Notify.NATSSubject != "" {
		publisher, err := notify.NewNATS(natsConnection, cfg.Notify.NATSSubject)
		if err != nil {
			return nil, err
		}

		notifiers = append(notifiers, publisher)
	}

	if len(notifiers) == 0 {
		return notify.Nop{}, nil
	}

	return notifiers, nil
}

func newService(cfg *config.Config, log *logger.Logger) (*service, error) {
	var natsConnection *nats.Conn

	if cfg.UsesNATS() {
		connection, err := nats.Connect(cfg.NATS.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
		}

		natsConnection = connection
	}

	svc, err := wire(cfg, natsConnection, log)
	if err != nil {
		if natsConnection != nil {
			natsConnection.Close()
		}

		return nil, err
	}

	return svc, nil
}

func wire(cfg *config.Config, natsConnection *nats.Conn, log *logger.Logger) (*service, error) {
	catalog, err := voices.Load(cfg.Voices.ManifestPath, cfg.Voices.Dir, cfg.Voices.ModelExt, cfg.Voices.Default)
	if err != nil {
		return nil, fmt.Errorf("failed to load voice catalog: %w", err)
	}

	store, err := buildStore(cfg, natsConnection)
	if err != nil {
		return nil, err
	}

	notifier, err := buildNotifier(cfg, natsConnection)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	serviceMetrics := metrics.New(registry)

	synthesizer := tts.NewPiperSynthesizer(tts.Config{
		BinaryPath: cfg.Engine.PiperPath,
		SampleRate: cfg.Engine.SampleRate,
		Timeout:    cfg.Engine.Timeout(),
	}, log)

	transcoder := audio.NewFFmpegTranscoder(audio.FFmpegConfig{
		BinaryPath: cfg.Transcoder.FFmpegPath,
		Quality:    *cfg.Transcoder.Quality,
		SampleRate: audio.DefaultSampleRate,
		StagingDir: cfg.Jobs.WorkDir,
	}, log)

	runner := pipeline.NewRunner(pipeline.Config{
		ChunkMaxChars: cfg.Jobs.ChunkMaxChars,
		Fanout:        cfg.Jobs.Fanout,
		WorkDir:       cfg.Jobs.WorkDir,
		NormalizeText: cfg.Jobs.NormalizeText,
	}, catalog, synthesizer, transcoder, store, serviceMetrics, log)

	jobRegistry := jobs.NewRegistry(store)

	pool := worker.NewPool(worker.Config{
		Workers:       cfg.Jobs.Workers,
		NotifyTimeout: cfg.Notify.Timeout(),
		JobTimeout:    cfg.Jobs.JobTimeout(),
		Retention:     cfg.Jobs.Retention(),
	}, jobRegistry, runner, store, notifier, serviceMetrics, log)

	gin.SetMode(cfg.Server.GinMode)

	handler := api.NewHandler(pool, jobRegistry, store, catalog, serviceMetrics, *cfg.Jobs.MaxTextChars, log)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewRouter(handler, registry),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	log.Info("Loaded %d voices, default %s", len(catalog.Keys()), catalog.DefaultVoice())

	return &service{
		server:         server,
		pool:           pool,
		natsConnection: natsConnection,
	}, nil
}

// serve runs the HTTP server until a signal arrives, then stops accepting
// requests and drains the queue within the shutdown timeout.
func (s *service) serve(shutdownTimeout time.Duration, log *logger.Logger) error {
	s.pool.Start()

	serverErrors := make(chan error, 1)

	go func() {
		log.System("TTS-Service listening on %s", s.server.Addr)

		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}

		close(serverErrors)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var serveErr error

	select {
	case sig := <-quit:
		log.Info("Received %s, shutting down", sig)
	case err := <-serverErrors:
		serveErr = fmt.Errorf("http server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.server.Shutdown(ctx)
	if err != nil {
		log.Warn("HTTP server forced to shutdown: %v", err)
	}

	err = s.pool.Shutdown(ctx)
	if err != nil {
		log.Warn("Workers did not drain before the shutdown timeout: %v", err)
	}

	if s.natsConnection != nil {
		drainErr := s.natsConnection.Drain()
		if drainErr != nil {
			log.Warn("Failed to drain NATS connection: %v", drainErr)
		}
	}

	log.System("TTS-Service stopped")

	return serveErr
}

func run(args []string) error {
	flagSet := flag.NewFlagSet("tts-service", flag.ContinueOnError)
	configPath := flagSet.String("config", "", "Path to a TOML config file (uses the central configurator when empty)")

	err := flagSet.Parse(args)
	if err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), "tts-service-bootstrap.log")
	if err != nil {
		// If bootstrap logger fails, we can only print to stderr
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() {
		_ = bootstrapLog.Close()
	}()

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration
	cfg, err := loadConfig(*configPath, bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, "tts-service.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	// 4. Wire the pipeline and serve
	svc, err := newService(cfg, finalLog)
	if err != nil {
		finalLog.Error("Failed to initialize service: %v", err)

		return err
	}

	finalLog.System("TTS-Service successfully initialized with %d workers, storage %s", cfg.Jobs.Workers, cfg.Storage.Backend)

	return svc.serve(cfg.Server.ShutdownTimeout(), finalLog)
}

func main() {
	err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
