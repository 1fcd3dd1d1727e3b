package global

import (
	"fleetpush/backend/config"

	"github.com/rs/zerolog"
)

var (
	Config config.Config
	Logger zerolog.Logger = zerolog.Nop()
)
