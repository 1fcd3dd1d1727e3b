package initialize

import (
	"fleetpush/backend/global"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	SetupLogger(os.Stdout, "info")
}

// SetupLogger points global.Logger at w with a console writer. Unknown levels fall back to info.
func SetupLogger(w io.Writer, level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	global.Logger = log.Output(zerolog.ConsoleWriter{Out: w}).Level(lvl).With().Str("component", "backend").Logger()
}
