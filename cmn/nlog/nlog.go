// Package nlog is the package-level leveled logger used throughout this
// module: no logger object threaded through every call site, zerolog
// underneath.
package nlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var base zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

// SetOutput redirects all subsequent log lines, e.g. to a file or
// io.Discard in tests.
func SetOutput(w io.Writer) {
	base = zerolog.New(w).With().Timestamp().Logger()
}

// SetLevel maps "debug"|"info"|"warn"|"error" onto the global zerolog level.
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func Infof(format string, args ...any)    { base.Info().Msgf(format, args...) }
func Warningf(format string, args ...any) { base.Warn().Msgf(format, args...) }
func Errorf(format string, args ...any)   { base.Error().Msgf(format, args...) }

// With returns a child logger carrying the given structured field, e.g.
// nlog.With("shard_id", id).Infof("opened")
func With(key string, val any) Fielder {
	return Fielder{ctx: base.With().Interface(key, val).Logger()}
}

// Fielder is a logger carrying extra structured fields; chain With calls to
// accumulate more.
type Fielder struct{ ctx zerolog.Logger }

func (f Fielder) With(key string, val any) Fielder {
	return Fielder{ctx: f.ctx.With().Interface(key, val).Logger()}
}

func (f Fielder) Infof(format string, args ...any)    { f.ctx.Info().Msgf(format, args...) }
func (f Fielder) Warningf(format string, args ...any) { f.ctx.Warn().Msgf(format, args...) }
func (f Fielder) Errorf(format string, args ...any)   { f.ctx.Error().Msgf(format, args...) }
