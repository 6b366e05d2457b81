package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aclr/agg-go/config"
	"github.com/aclr/agg-go/internal/aggregator"
	"github.com/aclr/agg-go/internal/cache"
	"github.com/aclr/agg-go/internal/chat"
	"github.com/aclr/agg-go/internal/feed"
	"github.com/aclr/agg-go/internal/httpserver"
	"github.com/aclr/agg-go/internal/logging"
	"github.com/aclr/agg-go/internal/pipeline"
	"github.com/aclr/agg-go/internal/storage"
)

var runCmd = &cobra.Command{
	Use:                "run",
	Short:              "Run the aggregator with the given configuration.",
	DisableSuggestions: false,
	Run:                runApp,
}

var startTime = time.Now()

func runApp(cmd *cobra.Command, args []string) {
	logging.InitLogger(false, "info")
	log := logging.Logger
	mainLogger := log.Named("Main")
	mainLogger.Info("Starting aggregator")
	config.Load(log, cmd)

	logging.InitLogger(config.ValueOf.Dev, config.ValueOf.LogLevel)
	log = logging.Logger
	mainLogger = log.Named("Main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(config.ValueOf.DatabasePath, log)
	if err != nil {
		mainLogger.Fatal("failed to open storage", zap.Error(err))
	}
	cache.InitCache(log)

	var providers []pipeline.SourceProvider
	var chatMetrics *chat.CollectorMetrics

	if config.ValueOf.HTTP.Enabled {
		feedProvider := feed.New(
			store,
			feed.NewGofeedCollector(),
			log,
			time.Duration(config.ValueOf.HTTP.SleepSecs)*time.Second,
			time.Duration(config.ValueOf.HTTP.ScrapeSourceSecsInterval)*time.Second,
		)
		providers = append(providers, feedProvider)
		mainLogger.Info("feed provider enabled")
	}

	if config.ValueOf.Telegram.Enabled {
		collector := chat.NewTelegramCollector(
			int(config.ValueOf.Telegram.APIID),
			config.ValueOf.Telegram.APIHash,
			config.ValueOf.Telegram.Phone,
			config.ValueOf.Telegram.DatabaseDirectory,
			config.ValueOf.Telegram.StagingDirectory,
			log,
		)
		chatProvider := chat.New(store, collector, config.ValueOf.Telegram.FilesDirectory, log)
		chatMetrics = chatProvider.Metrics
		providers = append(providers, chatProvider)
		mainLogger.Info("chat provider enabled")
	}

	if len(providers) == 0 {
		mainLogger.Fatal("no providers enabled; nothing to run")
	}

	agg := aggregator.New(log, store, providers...)

	mainRouter := getRouter(log, store)
	statusRouter := getStatusRouter(log, chatMetrics)

	mainLogger.Info("Aggregator starting",
		zap.Int("attachmentsPort", config.ValueOf.AttachmentsPort),
		zap.Int("statusPort", config.ValueOf.StatusPort))

	go func() {
		statusLogger := log.Named("StatusServer")
		statusLogger.Info("Starting status server", zap.Int("port", config.ValueOf.StatusPort))
		if err := statusRouter.Run(fmt.Sprintf(":%d", config.ValueOf.StatusPort)); err != nil {
			statusLogger.Sugar().Fatalln("Failed to start status server:", err)
		}
	}()

	go func() {
		attachLogger := log.Named("AttachmentsServer")
		attachLogger.Info("Starting attachments server", zap.Int("port", config.ValueOf.AttachmentsPort))
		if err := mainRouter.Run(fmt.Sprintf(":%d", config.ValueOf.AttachmentsPort)); err != nil {
			attachLogger.Sugar().Fatalln("Failed to start attachments server:", err)
		}
	}()

	agg.Run(ctx)
	mainLogger.Info("Aggregator stopped")
}

func getRouter(log *zap.Logger, store storage.Storage) *gin.Engine {
	if config.ValueOf.Dev {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	var router *gin.Engine
	if config.ValueOf.LogLevel == "error" || config.ValueOf.LogLevel == "warn" {
		router = gin.New()
		router.Use(gin.Recovery())
		router.Use(gin.ErrorLogger())
	} else {
		router = gin.Default()
		router.Use(gin.ErrorLogger())
	}

	httpserver.LoadMain(log, router, store, config.ValueOf.Telegram.FilesDirectory)
	return router
}

func getStatusRouter(log *zap.Logger, chatMetrics *chat.CollectorMetrics) *gin.Engine {
	if config.ValueOf.Dev {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	var router *gin.Engine
	if config.ValueOf.LogLevel == "error" || config.ValueOf.LogLevel == "warn" {
		router = gin.New()
		router.Use(gin.Recovery())
	} else {
		router = gin.Default()
	}

	httpserver.LoadStatusOnly(log, router, chatMetrics, startTime)
	return router
}
