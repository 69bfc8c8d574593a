package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/pdf2img/internal/config"
	"github.com/local/pdf2img/internal/document"
	"github.com/local/pdf2img/internal/imagerender"
	"github.com/local/pdf2img/internal/limiter"
	logpkg "github.com/local/pdf2img/internal/logger"
	"github.com/local/pdf2img/internal/metrics"
	"github.com/local/pdf2img/internal/mupdf"
	"github.com/local/pdf2img/internal/orchestrator"
	"github.com/local/pdf2img/internal/pdfium"
	"github.com/local/pdf2img/internal/statuscheck"
	"github.com/local/pdf2img/internal/storage"
)

func main() {
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	// Init logging
	lg, err := logpkg.Init(logpkg.Options{
		Service:    cfg.Logging.Service,
		Level:      cfg.Logging.Level,
		Pretty:     cfg.Logging.Pretty,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
		Axiom: logpkg.AxiomOptions{
			APIKey:        axiomKey(cfg.Axiom),
			OrgID:         cfg.Axiom.OrgID,
			Dataset:       cfg.Axiom.Dataset,
			MinLevel:      cfg.Axiom.MinLevel,
			FlushInterval: cfg.Axiom.FlushInterval,
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Close()

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	metrics.Init()

	ctx := context.Background()

	engine, err := newEngine(cfg.Convert)
	if err != nil {
		log.Fatal().Err(err).Str("engine", cfg.Convert.Engine).Msg("failed to init render engine")
	}
	defer engine.Close()

	store, err := newStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("failed to init object store")
	}

	// Admission
	adm, err := limiter.New(limiter.Options{RedisURL: cfg.Redis.URL, MaxInflight: cfg.Convert.MaxConversions})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer adm.CloseClient()

	statusOpts := statuscheck.Options{Store: store, Engine: engine.Name()}
	if adm.Shared() {
		statusOpts.Redis = adm
	}

	encoder := imagerender.NewEncoder(imagerender.Options{Quality: cfg.Convert.Quality, Contrast: imagerender.DefaultContrast})
	conv := orchestrator.NewConverter(engine, encoder, orchestrator.NewCoordinator(store, cfg.Convert.UploadConcurrency))

	orch := orchestrator.New(orchestrator.Dependencies{
		Converter: conv,
		Admission: adm,
		Status:    statuscheck.New(statusOpts),
		Metrics:   metrics.Handler(),
		Token:     cfg.Server.Token,
		BodyLimit: cfg.Server.BodyLimitBytes,
		Timeout:   cfg.Convert.RequestTimeout,
	})
	mux := http.NewServeMux()
	orch.RegisterRoutes(mux)

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: orchestrator.Wrap(mux, orchestrator.HTTPOptions{
			RateLimit:   cfg.Server.RateLimit,
			CORSOrigins: cfg.Server.CORSOrigins,
			Logger:      lg,
		}),
	}

	go func() {
		log.Info().Str("engine", engine.Name()).Str("storage", cfg.Storage.Backend).Msgf("HTTP server listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(ctx)
	fmt.Println("shutdown complete")
}

func newEngine(cfg cfgpkg.ConvertConfig) (document.Engine, error) {
	switch cfg.Engine {
	case "pdfium":
		return pdfium.NewEngine(pdfium.Options{Instances: cfg.PdfiumInstances})
	default:
		return mupdf.NewEngine(), nil
	}
}

func newStore(ctx context.Context, cfg cfgpkg.StorageConfig) (storage.ObjectStore, error) {
	switch cfg.Backend {
	case "memory":
		log.Warn().Msg("using in-memory object store; images are not persisted")
		return storage.NewMemory(), nil
	case "minio":
		return storage.NewMinioClient(ctx, storage.MinioOptions{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.KeyID,
			SecretKey: cfg.Secret,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Secure:    cfg.MinioSecure,
		})
	default:
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = storage.R2Endpoint(cfg.AccountID)
		}
		return storage.NewS3Client(ctx, storage.S3Options{
			Bucket:    cfg.Bucket,
			Endpoint:  endpoint,
			Region:    cfg.Region,
			AccessKey: cfg.KeyID,
			SecretKey: cfg.Secret,
			PathStyle: cfg.PathStyle,
		})
	}
}

// axiomKey returns the API key only when shipping is switched on.
func axiomKey(cfg cfgpkg.AxiomConfig) string {
	if !cfg.Send {
		return ""
	}
	return cfg.APIKey
}
