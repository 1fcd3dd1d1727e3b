package initialize

import (
	"context"
	"fleetpush/backend/app/controllers"
	"fleetpush/backend/app/db"
	jwtutil "fleetpush/backend/app/jwt"
	"fleetpush/backend/app/middleware"
	"fleetpush/backend/app/models"
	"fleetpush/backend/app/repo"
	"fleetpush/backend/app/services"
	"fleetpush/backend/app/session"
	"fleetpush/backend/app/storage"
	"fleetpush/backend/config"
	"fleetpush/backend/global"
	"fleetpush/backend/router"
	"fmt"
	"net/http"
	"os"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type App struct {
	Cfg      config.Config
	DB       *gorm.DB
	Router   http.Handler
	Sessions session.Store
	Commands *services.CommandService
	Updates  *services.UpdateService
	Users    *services.UserService
}

func Build(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	global.Config = *cfg
	SetupLogger(os.Stdout, cfg.Log.Level)

	gdb, err := db.Connect(db.Config{
		Driver: cfg.DB.Driver, Host: cfg.DB.Host, Port: cfg.DB.Port,
		User: cfg.DB.User, Password: cfg.DB.Pass, DBName: cfg.DB.Name, Path: cfg.DB.Path,
	})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	sessions, err := newSessionStore(*cfg)
	if err != nil {
		return nil, err
	}
	objects, err := storage.NewFSStore(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	return Wire(*cfg, gdb, sessions, objects)
}

// Wire migrates gdb and assembles services, controllers and routes.
func Wire(cfg config.Config, gdb *gorm.DB, sessions session.Store, objects storage.ObjectStore) (*App, error) {
	if err := Migrate(gdb); err != nil {
		return nil, err
	}

	userRepo := repo.NewUserRepository(gdb)
	deviceRepo := repo.NewDeviceRepository(gdb)
	commandRepo := repo.NewCommandRepository(gdb)
	releaseRepo := repo.NewReleaseRepository(gdb)
	logRepo := repo.NewAgentLogRepository(gdb)

	userSvc := services.NewUserService(userRepo)
	commandSvc := services.NewCommandService(commandRepo, deviceRepo)
	updateSvc := services.NewUpdateService(deviceRepo, releaseRepo, commandSvc, cfg.PublicURL)
	releaseSvc := services.NewReleaseService(releaseRepo, objects)
	logSvc := services.NewAgentLogService(logRepo)
	if cfg.Admin.Username != "" {
		if err := userSvc.EnsureAdmin(context.Background(), cfg.Admin.Username, cfg.Admin.Password); err != nil {
			global.Logger.Warn().Err(err).Msg("ensure admin user failed")
		}
	}

	signer := &jwtutil.Signer{Secret: []byte(cfg.JWT.Secret), Issuer: cfg.JWT.Issuer, ExpMin: cfg.JWT.ExpMin}
	mw := &middleware.Auth{Signer: signer, Sessions: sessions}
	h := router.NewRouter(router.Controllers{
		HTTP:     controllers.NewHTTPController(),
		Auth:     controllers.NewAuthController(userSvc, signer, sessions),
		Admin:    controllers.NewAdminController(userSvc),
		Commands: controllers.NewCommandController(commandSvc, cfg.Pull.Max),
		Updates:  controllers.NewUpdateController(updateSvc),
		Releases: controllers.NewReleaseController(releaseSvc, objects),
		Events:   controllers.NewAgentLogController(logSvc),
	}, mw)

	return &App{Cfg: cfg, DB: gdb, Router: h, Sessions: sessions, Commands: commandSvc, Updates: updateSvc, Users: userSvc}, nil
}

func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&models.User{},
		&models.Device{},
		&models.InstalledPackage{},
		&models.Command{},
		&models.Release{},
		&models.AgentLog{},
	); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func newSessionStore(cfg config.Config) (session.Store, error) {
	switch cfg.Session.Store {
	case "", "memory":
		return session.NewMemoryStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return session.NewRedisStore(client), nil
	default:
		return nil, fmt.Errorf("unsupported session store %q", cfg.Session.Store)
	}
}
