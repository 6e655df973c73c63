// Package cmd provides CLI commands for the spool binary.
package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/spool/store"
)

// Exit codes.
const (
	exitSuccess         = 0
	exitDownloadFailure = 1
	exitUsage           = 2
	exitStorage         = 3
)

// Global flags, shared by every command. Flags override spool.yaml.
var (
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to spool.yaml (default: ./spool.yaml if present)",
		EnvVars: []string{"SPOOL_CONFIG"},
	}

	LogLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: debug, info, warn, error",
	}

	StoreBackendFlag = &cli.StringFlag{
		Name:  "store-backend",
		Usage: "Chunk store backend: fs, s3, redis, memory",
	}

	StorePathFlag = &cli.StringFlag{
		Name:  "store-path",
		Usage: "Store root directory (fs) or bucket/prefix (s3)",
	}

	RedisURLFlag = &cli.StringFlag{
		Name:    "redis-url",
		Usage:   "Redis URL for the redis store backend",
		EnvVars: []string{"SPOOL_REDIS_URL"},
	}

	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}
)

// GlobalFlags returns the app-level flags.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		LogLevelFlag,
		StoreBackendFlag,
		StorePathFlag,
		RedisURLFlag,
		FormatFlag,
		NoColorFlag,
	}
}

// defaultStorePath is the fs store root when neither flag nor config set one.
const defaultStorePath = "./spool-data"

func defaultBackend(b string) string {
	if b == "" {
		return store.BackendFS
	}
	return b
}
