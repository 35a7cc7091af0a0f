package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Brownie44l1/smile-api/internal/artifact"
	"github.com/Brownie44l1/smile-api/internal/backends"
	"github.com/Brownie44l1/smile-api/internal/cache"
	"github.com/Brownie44l1/smile-api/internal/handlers"
	"github.com/Brownie44l1/smile-api/internal/history"
	"github.com/Brownie44l1/smile-api/internal/logging"
	"github.com/Brownie44l1/smile-api/internal/model"
	"github.com/Brownie44l1/smile-api/internal/notify"
	"github.com/Brownie44l1/smile-api/internal/source"
	"github.com/Brownie44l1/smile-api/internal/usecase"
)

const shutdownTimeout = 15 * time.Second

// shutdownSignals replaces os signal delivery for serve when set.
var shutdownSignals <-chan os.Signal

var (
	modelPath      string
	metadataPath   string
	runtimeName    string
	ortLibraryPath string
	numThreads     int
	port           string
	historyDB      string
	redisAddr      string
	cacheTTL       time.Duration
	debug          bool
)

var modelFlags = []cli.Flag{
	&cli.StringFlag{
		Name:        "model",
		Usage:       "Path or URL of the model file",
		Aliases:     []string{"m"},
		EnvVars:     []string{"MODEL_PATH"},
		Value:       artifact.DefaultModelPath,
		Destination: &modelPath,
	},
	&cli.StringFlag{
		Name:        "metadata",
		Usage:       "Path to the metadata JSON; defaults to a .json file next to the model",
		EnvVars:     []string{"MODEL_METADATA"},
		Destination: &metadataPath,
	},
	&cli.StringFlag{
		Name:        "runtime",
		Usage:       "Inference runtime: TFLITE, ORT or GO",
		Aliases:     []string{"r"},
		EnvVars:     []string{"MODEL_RUNTIME"},
		Value:       backends.DefaultRuntime,
		Destination: &runtimeName,
	},
	&cli.StringFlag{
		Name:        "ort-library",
		Usage:       "Path to onnxruntime.so for the ORT runtime",
		EnvVars:     []string{"ORT_LIBRARY_PATH"},
		Destination: &ortLibraryPath,
	},
	&cli.IntFlag{
		Name:        "threads",
		Usage:       "Interpreter threads, 0 for the runtime default",
		EnvVars:     []string{"MODEL_THREADS"},
		Destination: &numThreads,
	},
	&cli.BoolFlag{
		Name:        "debug",
		Usage:       "Human readable debug logging",
		EnvVars:     []string{"DEBUG"},
		Destination: &debug,
	},
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "Serve the smile detector over HTTP",
	Flags: append(append([]cli.Flag{}, modelFlags...),
		&cli.StringFlag{
			Name:        "port",
			Usage:       "HTTP port",
			EnvVars:     []string{"PORT"},
			Value:       "8080",
			Destination: &port,
		},
		&cli.StringFlag{
			Name:        "history-db",
			Usage:       "SQLite file for detection history; empty disables history",
			EnvVars:     []string{"HISTORY_DB"},
			Destination: &historyDB,
		},
		&cli.StringFlag{
			Name:        "redis-addr",
			Usage:       "Redis address for the result cache; empty disables caching",
			EnvVars:     []string{"REDIS_ADDR"},
			Destination: &redisAddr,
		},
		&cli.DurationFlag{
			Name:        "cache-ttl",
			Usage:       "How long cached results live",
			EnvVars:     []string{"CACHE_TTL"},
			Value:       cache.DefaultTTL,
			Destination: &cacheTTL,
		},
	),
	Action: serve,
}

var classifyCommand = &cli.Command{
	Name:      "classify",
	Usage:     "Classify image files and print one verdict per file",
	ArgsUsage: "FILE...",
	Flags:     modelFlags,
	Action:    classify,
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "smile-api",
		Usage:          "Smile detection on single images",
		Commands:       []*cli.Command{serveCommand, classifyCommand},
		DefaultCommand: serveCommand.Name,
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	return logging.NewLogger(debug || isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))
}

// newRuntime builds the configured runtime, taking tensor names from the
// artifact metadata when there is one.
func newRuntime(a *artifact.Artifact) (backends.Runtime, error) {
	opts := []backends.WithOption{
		backends.WithLibraryPath(ortLibraryPath),
		backends.WithNumThreads(numThreads),
	}
	if a != nil && a.Metadata != nil {
		opts = append(opts, backends.WithTensorNames(a.Metadata.InputName, a.Metadata.OutputName))
	}
	return backends.NewRuntime(runtimeName, opts...)
}

func serve(ctx *cli.Context) (err error) {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	notifier := notify.NewLogNotifier(logger)
	loader := artifact.Loader{ModelPath: modelPath, MetadataPath: metadataPath}
	a, readErr := loader.Load(ctx.Context)

	rt, rtErr := newRuntime(a)
	if rtErr == nil {
		defer func() {
			err = errors.Join(err, rt.Destroy())
		}()
	}

	pipeline := model.New(rt, model.WithLogger(logger))
	defer func() {
		err = errors.Join(err, pipeline.Unload())
	}()

	opts := []usecase.Option{usecase.WithArtifactLoader(loader)}

	if historyDB != "" {
		store, err := history.Open(ctx.Context, historyDB)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		defer store.Close()
		opts = append(opts, usecase.WithHistory(store))
	}

	if redisAddr != "" {
		client := initRedis(ctx.Context, redisAddr, logger)
		if client != nil {
			defer client.Close()
			opts = append(opts, usecase.WithCache(cache.NewRedisCache(client, cacheTTL)))
		}
	}

	uc := usecase.NewDetectionUseCase(pipeline, notifier, logger, opts...)

	// A missing runtime or a broken model leaves the service up. Without a
	// runtime every reload fails too; otherwise /model/reload recovers once
	// the artifact is fixed.
	switch {
	case rtErr != nil:
		logger.Error("failed to create inference runtime", zap.String("runtime", runtimeName), zap.Error(rtErr))
		_ = notifier.Notify(ctx.Context, notify.Error(notify.TextModelLoadFailed))
	case readErr != nil:
		logger.Error("failed to read model artifact", zap.String("model", modelPath), zap.Error(readErr))
		_ = notifier.Notify(ctx.Context, notify.Error(notify.TextModelLoadFailed))
	default:
		if loadErr := uc.Load(ctx.Context, a); loadErr != nil {
			logger.Error("model unavailable until reload", zap.Error(loadErr))
		}
	}

	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = handlers.MaxUploadSize
	handlers.RegisterRoutes(r, uc, logger)

	server := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return err
	}
	logger.Info("smile api listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("runtime", pipeline.Statistics().Runtime),
		zap.Bool("model_loaded", pipeline.Loaded()))
	return runHTTPServer(server, listener, shutdownTimeout, shutdownSignals, logger)
}

func initRedis(ctx context.Context, addr string, logger *zap.Logger) *redis.Client {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, caching disabled", zap.String("addr", addr), zap.Error(err))
		_ = client.Close()
		return nil
	}
	return client
}

func classify(ctx *cli.Context) (err error) {
	if ctx.NArg() == 0 {
		return cli.Exit("classify needs at least one image file", 2)
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	a, err := artifact.Loader{ModelPath: modelPath, MetadataPath: metadataPath}.Load(ctx.Context)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrModelLoad, err)
	}
	rt, err := newRuntime(a)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, rt.Destroy())
	}()

	pipeline := model.New(rt, model.WithLogger(logger))
	defer func() {
		err = errors.Join(err, pipeline.Unload())
	}()

	uc := usecase.NewDetectionUseCase(pipeline, notify.NewWriterNotifier(ctx.App.ErrWriter), logger)
	if err := uc.Load(ctx.Context, a); err != nil {
		return err
	}

	failed := 0
	for _, path := range ctx.Args().Slice() {
		detection, err := uc.Detect(ctx.Context, source.File(path))
		if err != nil {
			failed++
			fmt.Fprintf(ctx.App.Writer, "%s\t%s\n", path, notify.MessageFor(err).Text)
			continue
		}
		fmt.Fprintf(ctx.App.Writer, "%s\t%s\n", path, detection.Message)
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d images failed", failed, ctx.NArg()), 1)
	}
	return nil
}

// runHTTPServer serves on listener until it fails or a signal arrives on
// signals, then drains in-flight requests within shutdownTimeout. A nil
// signals channel subscribes to SIGINT and SIGTERM.
func runHTTPServer(server *http.Server, listener net.Listener, shutdownTimeout time.Duration, signals <-chan os.Signal, logger *zap.Logger) error {
	if signals == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		signals = ch
	}

	served := make(chan error, 1)
	go func() {
		err := server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		served <- err
	}()

	var sig os.Signal
	select {
	case err := <-served:
		return err
	case s, ok := <-signals:
		if !ok {
			return <-served
		}
		sig = s
	}

	logger.Info("shutting down", zap.Stringer("signal", sig))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return <-served
}
