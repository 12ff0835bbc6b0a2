package config

import "github.com/urfave/cli/v2"

// FlagConfig names the flag holding the configuration file path.
const FlagConfig = "config"

// Flags returns the command-line flags understood by Load. Their names are
// the dotted koanf keys. Defaults live in Default, not on the flags, so an
// unset flag never hides a file value.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    FlagConfig,
			Aliases: []string{"c"},
			EnvVars: []string{"HFSCO_CONFIG"},
			Usage:   "hjson configuration file",
		},
		&cli.StringFlag{Name: "log.level", Usage: "log level (debug, info, warn, error)"},
		&cli.IntFlag{Name: "session.max", Usage: "maximum concurrent sessions"},
		&cli.IntFlag{Name: "session.queue_size", Usage: "per-session request queue length"},
		&cli.StringFlag{Name: "peer.address", Usage: "simulated Audio Gateway address"},
		&cli.StringFlag{Name: "peer.version", Usage: "peer Hands-Free profile version, e.g. 1.7"},
		&cli.StringFlag{Name: "peer.codec", Usage: "negotiated codec (cvsd, msbc)"},
		&cli.StringFlag{Name: "cache.backend", Usage: "capability cache backend (memory, redis)"},
		&cli.DurationFlag{Name: "cache.ttl", Usage: "capability cache lifetime"},
		&cli.StringFlag{Name: "cache.redis_addr", EnvVars: []string{"HFSCO_REDIS_ADDR"}, Usage: "redis address"},
		&cli.DurationFlag{Name: "sim.latency", Usage: "simulated controller event delay"},
		&cli.BoolFlag{Name: "sim.fail_esco", Usage: "make eSCO connection attempts fail"},
	}
}
