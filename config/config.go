package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	defaultDev                          bool   = false
	defaultLogLevel                     string = "info"
	defaultStatusPort                   int    = 9090
	defaultAttachmentsPort              int    = 9091
	defaultHTTPEnabled                  bool   = true
	defaultHTTPSleepSecs                uint64 = 300
	defaultHTTPScrapeSourceSecsInterval int32  = 3600
	defaultTelegramEnabled              bool   = true
	defaultTelegramLogVerbosityLevel    int32  = 0
	defaultTelegramMaxDownloadQueueSize int    = 10
	defaultTelegramLogDownloadInterval  int64  = 60
	defaultTelegramFilesDirectory       string = "./files"
	defaultTelegramStagingDirectory     string = "./downloads"
	defaultTelegramDatabaseDirectory    string = "./tdata"
)

// HTTPConfig is the Feed Provider's stable knob set.
type HTTPConfig struct {
	Enabled                  bool   `envconfig:"HTTP_ENABLED" default:"true"`
	SleepSecs                uint64 `envconfig:"HTTP_SLEEP_SECS" default:"300"`
	ScrapeSourceSecsInterval int32  `envconfig:"HTTP_SCRAPE_SOURCE_SECS_INTERVAL" default:"3600"`
}

// TelegramConfig is the Chat Provider's stable knob set.
type TelegramConfig struct {
	Enabled                      bool   `envconfig:"TELEGRAM_ENABLED" default:"true"`
	APIID                        int32  `envconfig:"API_ID"`
	APIHash                      string `envconfig:"API_HASH"`
	Phone                        string `envconfig:"PHONE"`
	DatabaseDirectory            string `envconfig:"DATABASE_DIRECTORY" default:"./tdata"`
	LogVerbosityLevel            int32  `envconfig:"LOG_VERBOSITY_LEVEL" default:"0"`
	MaxDownloadQueueSize         int    `envconfig:"MAX_DOWNLOAD_QUEUE_SIZE" default:"10"`
	LogDownloadStateSecsInterval int64  `envconfig:"LOG_DOWNLOAD_STATE_SECS_INTERVAL" default:"60"`
	FilesDirectory               string `envconfig:"FILES_DIRECTORY" default:"./files"`
	StagingDirectory             string `envconfig:"STAGING_DIRECTORY" default:"./downloads"`
}

// AggregatorConfig is the engine's full build(config) surface plus the
// ambient knobs (logging, status/attachment server ports) the core itself
// has no opinion on.
type AggregatorConfig struct {
	HTTP            HTTPConfig
	Telegram        TelegramConfig
	Dev             bool   `envconfig:"DEV" default:"false"`
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`
	StatusPort      int    `envconfig:"STATUS_PORT" default:"9090"`
	AttachmentsPort int    `envconfig:"ATTACHMENTS_PORT" default:"9091"`
	DatabasePath    string `envconfig:"DATABASE_PATH" default:"./agg.db"`
}

var ValueOf = &AggregatorConfig{
	Dev:             defaultDev,
	LogLevel:        defaultLogLevel,
	StatusPort:      defaultStatusPort,
	AttachmentsPort: defaultAttachmentsPort,
	HTTP: HTTPConfig{
		Enabled:                  defaultHTTPEnabled,
		SleepSecs:                defaultHTTPSleepSecs,
		ScrapeSourceSecsInterval: defaultHTTPScrapeSourceSecsInterval,
	},
	Telegram: TelegramConfig{
		Enabled:                      defaultTelegramEnabled,
		LogVerbosityLevel:            defaultTelegramLogVerbosityLevel,
		MaxDownloadQueueSize:         defaultTelegramMaxDownloadQueueSize,
		LogDownloadStateSecsInterval: defaultTelegramLogDownloadInterval,
		FilesDirectory:               defaultTelegramFilesDirectory,
		StagingDirectory:             defaultTelegramStagingDirectory,
		DatabaseDirectory:            defaultTelegramDatabaseDirectory,
	},
}

func (c *AggregatorConfig) loadFromEnvFile(log *zap.Logger) {
	envPath := filepath.Clean("agg.env")
	log.Sugar().Infof("Trying to load ENV vars from %s", envPath)
	if err := godotenv.Load(envPath); err != nil {
		if os.IsNotExist(err) {
			log.Sugar().Warn("ENV file not found, relying on process environment and flags")
		} else {
			log.Sugar().Errorf("Error while parsing %s: %v", envPath, err)
		}
	}
}

// SetFlagsFromConfig registers the cobra flags that mirror the env vars
// this package reads, following the flag-bridges-to-env pattern used
// throughout this codebase's CLI. LOG_VERBOSITY_LEVEL and
// LOG_DOWNLOAD_STATE_SECS_INTERVAL have no flag and are read from the
// environment only.
func SetFlagsFromConfig(cmd *cobra.Command) {
	cmd.Flags().Bool("dev", ValueOf.Dev, "Enable development mode")
	cmd.Flags().String("log-level", ValueOf.LogLevel, "Log level (debug, info, warn, error)")
	cmd.Flags().Int("status-port", ValueOf.StatusPort, "Status server port")
	cmd.Flags().Int("attachments-port", ValueOf.AttachmentsPort, "Attachment server port")
	cmd.Flags().String("database-path", ValueOf.DatabasePath, "Sqlite database path")
	cmd.Flags().Bool("http-enabled", ValueOf.HTTP.Enabled, "Enable the feed provider")
	cmd.Flags().Uint64("http-sleep-secs", ValueOf.HTTP.SleepSecs, "Feed poll loop sleep, in seconds")
	cmd.Flags().Int32("http-scrape-source-secs-interval", ValueOf.HTTP.ScrapeSourceSecsInterval, "Minimum age, in seconds, before a feed source is re-scraped")
	cmd.Flags().Bool("telegram-enabled", ValueOf.Telegram.Enabled, "Enable the chat provider")
	cmd.Flags().Int32("api-id", ValueOf.Telegram.APIID, "Telegram API ID")
	cmd.Flags().String("api-hash", ValueOf.Telegram.APIHash, "Telegram API Hash")
	cmd.Flags().String("phone", ValueOf.Telegram.Phone, "Telegram account phone number")
	cmd.Flags().String("database-directory", ValueOf.Telegram.DatabaseDirectory, "Telegram session/database directory")
	cmd.Flags().String("files-directory", ValueOf.Telegram.FilesDirectory, "Directory finalized downloads are relocated into")
	cmd.Flags().String("staging-directory", ValueOf.Telegram.StagingDirectory, "Directory the collector downloads into before the engine relocates a file")
	cmd.Flags().Int("max-download-queue-size", ValueOf.Telegram.MaxDownloadQueueSize, "Download queue size (loaded into config; no component reads it)")
}

func (c *AggregatorConfig) loadConfigFromArgs(cmd *cobra.Command) {
	setIfChanged := func(flag, env string, get func() (string, error)) {
		if !cmd.Flags().Changed(flag) {
			return
		}
		v, err := get()
		if err == nil {
			os.Setenv(env, v)
		}
	}
	setIfChanged("dev", "DEV", func() (string, error) {
		v, err := cmd.Flags().GetBool("dev")
		return strconv.FormatBool(v), err
	})
	setIfChanged("log-level", "LOG_LEVEL", func() (string, error) { return cmd.Flags().GetString("log-level") })
	setIfChanged("status-port", "STATUS_PORT", func() (string, error) {
		v, err := cmd.Flags().GetInt("status-port")
		return strconv.Itoa(v), err
	})
	setIfChanged("attachments-port", "ATTACHMENTS_PORT", func() (string, error) {
		v, err := cmd.Flags().GetInt("attachments-port")
		return strconv.Itoa(v), err
	})
	setIfChanged("database-path", "DATABASE_PATH", func() (string, error) { return cmd.Flags().GetString("database-path") })
	setIfChanged("http-enabled", "HTTP_ENABLED", func() (string, error) {
		v, err := cmd.Flags().GetBool("http-enabled")
		return strconv.FormatBool(v), err
	})
	setIfChanged("http-sleep-secs", "HTTP_SLEEP_SECS", func() (string, error) {
		v, err := cmd.Flags().GetUint64("http-sleep-secs")
		return strconv.FormatUint(v, 10), err
	})
	setIfChanged("http-scrape-source-secs-interval", "HTTP_SCRAPE_SOURCE_SECS_INTERVAL", func() (string, error) {
		v, err := cmd.Flags().GetInt32("http-scrape-source-secs-interval")
		return strconv.Itoa(int(v)), err
	})
	setIfChanged("telegram-enabled", "TELEGRAM_ENABLED", func() (string, error) {
		v, err := cmd.Flags().GetBool("telegram-enabled")
		return strconv.FormatBool(v), err
	})
	setIfChanged("api-id", "API_ID", func() (string, error) {
		v, err := cmd.Flags().GetInt32("api-id")
		return strconv.Itoa(int(v)), err
	})
	setIfChanged("api-hash", "API_HASH", func() (string, error) { return cmd.Flags().GetString("api-hash") })
	setIfChanged("phone", "PHONE", func() (string, error) { return cmd.Flags().GetString("phone") })
	setIfChanged("database-directory", "DATABASE_DIRECTORY", func() (string, error) { return cmd.Flags().GetString("database-directory") })
	setIfChanged("files-directory", "FILES_DIRECTORY", func() (string, error) { return cmd.Flags().GetString("files-directory") })
	setIfChanged("staging-directory", "STAGING_DIRECTORY", func() (string, error) { return cmd.Flags().GetString("staging-directory") })
	setIfChanged("max-download-queue-size", "MAX_DOWNLOAD_QUEUE_SIZE", func() (string, error) {
		v, err := cmd.Flags().GetInt("max-download-queue-size")
		return strconv.Itoa(v), err
	})
}

func (c *AggregatorConfig) setupEnvVars(log *zap.Logger, cmd *cobra.Command) {
	c.loadFromEnvFile(log)
	c.loadConfigFromArgs(cmd)
	if err := envconfig.Process("", c); err != nil {
		log.Fatal("Error while parsing env variables", zap.Error(err))
	}
}

// Load populates ValueOf from agg.env, the process environment and cobra
// flags. A changed flag overrides the process environment, which in turn
// overrides agg.env (godotenv never replaces a variable already set).
func Load(log *zap.Logger, cmd *cobra.Command) {
	log = log.Named("Config")
	defer log.Info("Loaded config")
	ValueOf.setupEnvVars(log, cmd)
	if ValueOf.Telegram.Enabled && (ValueOf.Telegram.APIID == 0 || ValueOf.Telegram.APIHash == "") {
		log.Sugar().Warn("telegram provider enabled but API_ID/API_HASH are unset; the chat provider will fail to start")
	}
	if !ValueOf.HTTP.Enabled && !ValueOf.Telegram.Enabled {
		log.Sugar().Warn("both providers are disabled; the aggregator will have nothing to run")
	}
}
