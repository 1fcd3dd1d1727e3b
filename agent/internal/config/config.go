package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	BackendURL string
	DeviceID   string
	Username   string
	Password   string
	TokenPath  string
	LogPath    string
	DBPath     string

	DownloadDir string
	// ResumePolicy is "reuse" or "discard" for partial downloads.
	ResumePolicy   string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// SignerCmd prints the signing fingerprint of the file passed as last argument.
	SignerCmd []string

	FailurePolicy string
	MaxRetries    int
	ItemTimeout   time.Duration
	LogCapacity   int

	InstallerBin string
	PendingDir   string
	RebootCmd    []string

	PollInterval   time.Duration
	PollMax        int
	UpdateInterval time.Duration
	AutoUpdate     bool
}

var cfg AppConfig

func defaultDir() string { return filepath.Join(os.TempDir(), "fleetpush") }

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("fleetpush")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// defaults
	dir := defaultDir()
	v.SetDefault("agent.backend.url", "http://127.0.0.1:9400")
	v.SetDefault("agent.token_path", filepath.Join(dir, "agent.token"))
	v.SetDefault("agent.db_path", filepath.Join(dir, "agent.db"))
	v.SetDefault("agent.download_dir", filepath.Join(dir, "downloads"))
	v.SetDefault("agent.download.resume_policy", "reuse")
	v.SetDefault("agent.download.connect_timeout", "10s")
	v.SetDefault("agent.download.read_timeout", "60s")
	v.SetDefault("agent.queue.failure_policy", "retry-then-continue")
	v.SetDefault("agent.queue.max_retries", 2)
	v.SetDefault("agent.queue.item_timeout", "30m")
	v.SetDefault("agent.queue.log_capacity", 500)
	v.SetDefault("agent.installer.pending_dir", filepath.Join(dir, "pending"))
	v.SetDefault("agent.reboot_cmd", []string{"systemctl", "reboot"})
	v.SetDefault("agent.poll.interval", "30s")
	v.SetDefault("agent.poll.max", 10)
	v.SetDefault("agent.updates.interval", "1h")
	v.SetDefault("agent.updates.auto", true)
	return v
}

// Load reads path; a missing file leaves defaults and environment in effect.
func Load(path string) (AppConfig, error) {
	v := newViper(path)
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return AppConfig{}, fmt.Errorf("read config: %w", err)
		}
	}
	return fromViper(v), nil
}

func fromViper(v *viper.Viper) AppConfig {
	return AppConfig{
		BackendURL:     strings.TrimSuffix(v.GetString("agent.backend.url"), "/"),
		DeviceID:       v.GetString("agent.device_id"),
		Username:       v.GetString("agent.username"),
		Password:       v.GetString("agent.password"),
		TokenPath:      v.GetString("agent.token_path"),
		LogPath:        v.GetString("agent.log_path"),
		DBPath:         v.GetString("agent.db_path"),
		DownloadDir:    v.GetString("agent.download_dir"),
		ResumePolicy:   strings.ToLower(v.GetString("agent.download.resume_policy")),
		ConnectTimeout: v.GetDuration("agent.download.connect_timeout"),
		ReadTimeout:    v.GetDuration("agent.download.read_timeout"),
		SignerCmd:      v.GetStringSlice("agent.download.signer_cmd"),
		FailurePolicy:  strings.ToLower(v.GetString("agent.queue.failure_policy")),
		MaxRetries:     v.GetInt("agent.queue.max_retries"),
		ItemTimeout:    v.GetDuration("agent.queue.item_timeout"),
		LogCapacity:    v.GetInt("agent.queue.log_capacity"),
		InstallerBin:   v.GetString("agent.installer.bin"),
		PendingDir:     v.GetString("agent.installer.pending_dir"),
		RebootCmd:      v.GetStringSlice("agent.reboot_cmd"),
		PollInterval:   v.GetDuration("agent.poll.interval"),
		PollMax:        v.GetInt("agent.poll.max"),
		UpdateInterval: v.GetDuration("agent.updates.interval"),
		AutoUpdate:     v.GetBool("agent.updates.auto"),
	}
}

// Init loads path into the process-wide config returned by Get.
func Init(path string) (AppConfig, error) {
	c, err := Load(path)
	if err != nil {
		return AppConfig{}, err
	}
	cfg = c
	return cfg, nil
}

func Get() AppConfig { return cfg }

func TokenFilePath() string {
	if cfg.TokenPath == "" {
		return filepath.Join(defaultDir(), "agent.token")
	}
	return cfg.TokenPath
}
