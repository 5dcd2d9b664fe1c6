package cmd

import (
	"errors"
	"os"

	log "github.com/sirupsen/logrus"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/connscope/connscope/pkg/connscope"
	"github.com/connscope/connscope/pkg/connscope/filter"
)

// Process command line args into a configuration object. If the
// "--help" or "--version" flags are provided, return nil with no error.
// If args is nil, os.Args will be used. If logger is nil, a default
// logger will be created and included in the returned configuration.
func NewConfiguration(args []string, logger *log.Logger) (*connscope.Config, error) {
	if args == nil {
		args = os.Args
	}

	var configToReturn *connscope.Config

	app := cli.NewApp()
	app.Name = "connscope"
	app.Version = connscope.Version()
	app.Usage = "A live connection monitor for Clash-compatible proxy controllers"
	app.ArgsUsage = " " // blank but non-empty to suppress default "[arguments...]"

	// Suppress "help" subcommand, as we have no other subcommands.
	// Unfortunately, this also suppresses "--help", so we'll add it back
	// in manually below.  See https://github.com/urfave/cli/issues/523
	app.HideHelp = true

	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "help",
			Usage: "Show this help text.",
		},
		cli.StringFlag{
			Name:  "config-file",
			Usage: "Load configuration from `FILE`.\n\t\tOther flags are ignored when a config file is used.",
		},
		cli.StringFlag{
			Name:  "controller-addr",
			Value: connscope.DefaultControllerAddr,
			Usage: "Connect to the controller's external controller API at `ADDRESS` (host:port).",
		},
		cli.StringFlag{
			Name:  "secret",
			Usage: "Authenticate to the controller with `TOKEN`.",
		},
		cli.BoolFlag{
			Name:  "poll",
			Usage: "Poll /connections over HTTP instead of subscribing over websocket.",
		},
		cli.DurationFlag{
			Name:  "poll-interval",
			Value: connscope.DefaultPollInterval,
			Usage: "Poll every `DURATION` (polling mode only).",
		},
		cli.DurationFlag{
			Name:  "retry-delay",
			Value: connscope.DefaultRetryDelay,
			Usage: "Wait `DURATION` between feed reconnect attempts.",
		},
		cli.IntFlag{
			Name:  "max-retries",
			Value: connscope.DefaultMaxRetries,
			Usage: "Give up after `N` consecutive feed connection failures.",
		},
		cli.StringFlag{
			Name:  "search",
			Usage: "Seed the view filter with `TEXT`.",
		},
		cli.BoolFlag{
			Name:  "ignore-case",
			Usage: "Make the view filter case-insensitive.",
		},
		cli.BoolFlag{
			Name:  "whole-word",
			Usage: "Match the view filter on word boundaries only.",
		},
		cli.BoolFlag{
			Name:  "regex",
			Usage: "Interpret the view filter as a regular expression.",
		},
		cli.StringFlag{
			Name:  "ordering",
			Usage: "Order the view by `ORDERING`: default, upload-speed or download-speed.",
		},
		cli.Float64Flag{
			Name:  "max-snapshot-rate",
			Usage: "Apply at most `RATE` snapshots per second (0 = unlimited).",
		},
		cli.StringFlag{
			Name:  "stats-addr",
			Usage: "Serve the connection view over TCP at `ADDRESS` (host:port).",
		},
		cli.StringFlag{
			Name:  "stats-socket-dir",
			Usage: "Serve the connection view on a unix socket in `DIR`.",
		},
		cli.BoolFlag{
			Name:  "proxy-protocol",
			Usage: "Enable PROXY protocol support on the TCP stats listener.",
		},
		cli.StringFlag{
			Name:  "statsd-address",
			Value: connscope.DefaultStatsdAddress,
			Usage: "Send metrics to statsd at `ADDRESS` (IP:port).",
		},
	}

	app.Action = func(c *cli.Context) error {
		if c.Bool("help") {
			cli.ShowAppHelp(c)
			return nil // configToReturn will not be set
		}
		if len(c.Args()) > 0 {
			return errors.New("Received unexpected non-option argument(s)")
		}

		if configFile := c.String("config-file"); configFile != "" {
			conf, err := connscope.LoadConfig(configFile)
			if err != nil {
				return err
			}
			if logger != nil {
				conf.Log = logger
			}
			configToReturn = conf
			return nil
		}

		conf := connscope.NewConfig()

		if logger != nil {
			conf.Log = logger
		}

		conf.ControllerAddr = c.String("controller-addr")
		conf.Secret = c.String("secret")
		conf.Poll = c.Bool("poll")
		conf.PollInterval = c.Duration("poll-interval")
		conf.RetryDelay = c.Duration("retry-delay")
		conf.MaxRetries = c.Int("max-retries")
		conf.StatsAddr = c.String("stats-addr")
		conf.StatsSocketDir = c.String("stats-socket-dir")
		conf.SupportProxyProtocol = c.Bool("proxy-protocol")

		conf.Search = filter.Query{
			Text:      c.String("search"),
			MatchCase: !c.Bool("ignore-case"),
			WholeWord: c.Bool("whole-word"),
			Regex:     c.Bool("regex"),
		}

		if err := conf.SetOrdering(c.String("ordering")); err != nil {
			return err
		}

		if rate := c.Float64("max-snapshot-rate"); rate > 0 {
			if err := conf.SetSnapshotRate(rate, -1); err != nil {
				return err
			}
		}

		if err := conf.SetupStatsd(c.String("statsd-address")); err != nil {
			return err
		}

		configToReturn = conf
		return nil
	}

	err := app.Run(args)

	return configToReturn, err
}
