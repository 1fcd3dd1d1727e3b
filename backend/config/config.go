package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type DB struct {
	Driver string
	Host   string
	Port   int
	User   string
	Pass   string
	Name   string
	Path   string
}

type HTTP struct {
	Host string
	Port int
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Config struct {
	HTTP      HTTP
	DB        DB
	Redis     Redis
	PublicURL string
	JWT       struct {
		Secret string
		Issuer string
		ExpMin int
	}
	Session struct {
		Store string
	}
	Storage struct {
		Path string
	}
	Pull struct {
		Max int
	}
	Admin struct {
		Username string
		Password string
	}
	Log struct {
		Level string
	}
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("fleetpush")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("backend.http.host", "127.0.0.1")
	v.SetDefault("backend.http.port", 9400)
	v.SetDefault("backend.db.driver", "mysql")
	v.SetDefault("backend.db.host", "127.0.0.1")
	v.SetDefault("backend.db.port", 3306)
	v.SetDefault("backend.db.user", "root")
	v.SetDefault("backend.db.pass", "")
	v.SetDefault("backend.db.name", "fleetpush")
	v.SetDefault("backend.db.path", "fleetpush.db")
	v.SetDefault("backend.redis.addr", "127.0.0.1:6379")
	v.SetDefault("backend.redis.db", 0)
	v.SetDefault("backend.session.store", "memory")
	v.SetDefault("backend.storage.path", "artifacts")
	v.SetDefault("backend.pull.max", 10)
	v.SetDefault("backend.admin.username", "admin")
	v.SetDefault("backend.admin.password", "admin123")
	v.SetDefault("backend.log.level", "info")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{
		HTTP: HTTP{Host: v.GetString("backend.http.host"), Port: v.GetInt("backend.http.port")},
		DB: DB{
			Driver: strings.ToLower(v.GetString("backend.db.driver")),
			Host:   v.GetString("backend.db.host"),
			Port:   v.GetInt("backend.db.port"),
			User:   v.GetString("backend.db.user"),
			Pass:   v.GetString("backend.db.pass"),
			Name:   v.GetString("backend.db.name"),
			Path:   v.GetString("backend.db.path"),
		},
		Redis: Redis{
			Addr:     v.GetString("backend.redis.addr"),
			Password: v.GetString("backend.redis.password"),
			DB:       v.GetInt("backend.redis.db"),
		},
		PublicURL: strings.TrimSuffix(v.GetString("backend.public_url"), "/"),
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = fmt.Sprintf("http://%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	}
	cfg.JWT.Secret = v.GetString("backend.jwt.secret")
	if cfg.JWT.Secret == "" {
		cfg.JWT.Secret = "dev-secret"
	}
	cfg.JWT.Issuer = v.GetString("backend.jwt.issuer")
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "fleetpush"
	}
	cfg.JWT.ExpMin = v.GetInt("backend.jwt.exp_min")
	if cfg.JWT.ExpMin <= 0 {
		cfg.JWT.ExpMin = 60
	}
	cfg.Session.Store = strings.ToLower(v.GetString("backend.session.store"))
	cfg.Storage.Path = v.GetString("backend.storage.path")
	cfg.Pull.Max = v.GetInt("backend.pull.max")
	if cfg.Pull.Max <= 0 {
		cfg.Pull.Max = 10
	}
	cfg.Admin.Username = v.GetString("backend.admin.username")
	cfg.Admin.Password = v.GetString("backend.admin.password")
	cfg.Log.Level = v.GetString("backend.log.level")
	return cfg, nil
}
