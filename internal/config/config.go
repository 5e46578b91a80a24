package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port     string `mapstructure:"port"`
		DataDir  string `mapstructure:"data_dir"`
		LogLevel string `mapstructure:"log_level"`
	} `mapstructure:"server"`
	Camera struct {
		Device         string `mapstructure:"device"` // numeric index, or "stub" for development
		Width          int    `mapstructure:"width"`
		Height         int    `mapstructure:"height"`
		WarmupMillis   int    `mapstructure:"warmup_millis"`
		CaptureTimeout int    `mapstructure:"capture_timeout_seconds"`
	} `mapstructure:"camera"`
	Capture struct {
		TickMillis   int `mapstructure:"tick_millis"`
		RetryMax     int `mapstructure:"retry_max"`
		RetryBackoff int `mapstructure:"retry_backoff_millis"`
		DiskFloorMB  int `mapstructure:"disk_floor_mb"`
	} `mapstructure:"capture"`
	Health struct {
		SampleSeconds int `mapstructure:"sample_seconds"`
		HistorySize   int `mapstructure:"history_size"`
	} `mapstructure:"health"`
	Archive struct {
		Provider  string `mapstructure:"provider"` // "local" or "s3"
		LocalPath string `mapstructure:"local_path"`
		KeyID     string `mapstructure:"key_id"`
		AppKey    string `mapstructure:"app_key"`
		Endpoint  string `mapstructure:"endpoint"`
		Region    string `mapstructure:"region"`
		Bucket    string `mapstructure:"bucket"`
	} `mapstructure:"archive"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
}

func Load() *Config {
	viper.SetEnvPrefix("TIMECOURSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Register keys
	viper.BindEnv("server.port")
	viper.BindEnv("server.data_dir")
	viper.BindEnv("server.log_level")
	viper.BindEnv("camera.device")
	viper.BindEnv("camera.width")
	viper.BindEnv("camera.height")
	viper.BindEnv("camera.warmup_millis")
	viper.BindEnv("camera.capture_timeout_seconds")
	viper.BindEnv("capture.tick_millis")
	viper.BindEnv("capture.retry_max")
	viper.BindEnv("capture.retry_backoff_millis")
	viper.BindEnv("capture.disk_floor_mb")
	viper.BindEnv("health.sample_seconds")
	viper.BindEnv("health.history_size")
	viper.BindEnv("archive.provider")
	viper.BindEnv("archive.local_path")
	viper.BindEnv("archive.key_id")
	viper.BindEnv("archive.app_key")
	viper.BindEnv("archive.endpoint")
	viper.BindEnv("archive.region")
	viper.BindEnv("archive.bucket")
	viper.BindEnv("database.path")

	// Defaults (tuned for a Pi Zero class board)
	viper.SetDefault("server.port", ":5000")
	viper.SetDefault("server.data_dir", "./timecourse_data")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("camera.device", "0")
	viper.SetDefault("camera.width", 1920)
	viper.SetDefault("camera.height", 1080)
	viper.SetDefault("camera.warmup_millis", 1000)
	viper.SetDefault("camera.capture_timeout_seconds", 10)
	viper.SetDefault("capture.tick_millis", 250)
	viper.SetDefault("capture.retry_max", 3)
	viper.SetDefault("capture.retry_backoff_millis", 500)
	viper.SetDefault("capture.disk_floor_mb", 256)
	viper.SetDefault("health.sample_seconds", 15)
	viper.SetDefault("health.history_size", 240)
	viper.SetDefault("archive.provider", "local")
	viper.SetDefault("archive.local_path", "/media")
	viper.SetDefault("database.path", "./timecourse_data/timecourse.db")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/timecourse/")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("Warning: Config error: %s", err)
		} else {
			log.Println("Info: config.yaml not found, using Environment Variables only.")
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatalf("Unable to decode config: %v", err)
	}

	if cfg.Archive.Provider == "s3" && cfg.Archive.KeyID == "" {
		log.Fatal("Critical: archive key id is missing (TIMECOURSE_ARCHIVE_KEY_ID)")
	}

	return &cfg
}
