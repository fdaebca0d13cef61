package observability

import (
	"github.com/danmuck/bridgectl/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the runtime log profile and tags every line with
// the app and bridge role.
func InitLogger(app, role string) zerolog.Logger {
	logging.ConfigureRuntime()
	logger := log.With().Str("app", app).Str("role", role).Logger()
	log.Logger = logger
	return logger
}
