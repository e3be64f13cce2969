package rtpsession

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// pkgLogger is the package-wide fallback logger; individual Sessions
// normally carry their own child logger (see Session.log) so that
// per-session fields (ssrc, cname) are attached automatically.
var (
	pkgLogger     zerolog.Logger
	pkgLoggerOnce sync.Once
)

func defaultLogger() zerolog.Logger {
	pkgLoggerOnce.Do(func() {
		pkgLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().
			Timestamp().
			Str("component", "rtpsession").
			Logger()
	})
	return pkgLogger
}

// SetLogger overrides the package-wide fallback logger, e.g. to route
// output through an application's existing zerolog instance.
func SetLogger(l zerolog.Logger) {
	pkgLoggerOnce.Do(func() {})
	pkgLogger = l
}
