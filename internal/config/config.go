// Package config wires the ambient CLI/config/logging stack shared by
// all three invocation modes (builder, server, client): pflag flag
// sets merged into a koanf tree via the posflag and env providers,
// exactly the way core/bgpipe.go wires its own flags, plus a
// zerolog console logger in the same style (SPEC_FULL.md §6.4).
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

// envPrefix is the prefix recognized for environment-variable
// overrides, e.g. RTRD_STORE_DIR for --store-dir.
const envPrefix = "RTRD_"

// Load parses args with f, then merges CLI flags and matching
// environment variables into a fresh koanf tree, CLI taking priority.
func Load(f *pflag.FlagSet, args []string) (*koanf.Koanf, error) {
	if err := f.Parse(args); err != nil {
		return nil, err
	}

	// Flags not given on the command line take the matching RTRD_*
	// environment variable, so the typed flag values see it too.
	var setErr error
	f.VisitAll(func(fl *pflag.Flag) {
		if setErr != nil || fl.Changed {
			return
		}
		name := envPrefix + strings.ToUpper(strings.ReplaceAll(fl.Name, "-", "_"))
		if v, ok := os.LookupEnv(name); ok {
			setErr = f.Set(fl.Name, v)
		}
	})
	if setErr != nil {
		return nil, setErr
	}

	k := koanf.New(".")
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, err
	}
	return k, nil
}

// envKey maps RTRD_STORE_DIR -> store-dir, matching the flag names
// registered on f.
func envKey(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", "-")
}

// NewLogger builds a console-writer zerolog.Logger at the requested
// level, in the same style as core/bgpipe.go's default logger.
func NewLogger(level string) (zerolog.Logger, error) {
	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.DateTime,
	}).With().Timestamp().Logger()

	if level == "" {
		return logger, nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return logger, err
	}
	return logger.Level(lvl), nil
}
