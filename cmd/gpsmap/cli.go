package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/gpsmap/internal/analyzer"
	"github.com/hpungsan/gpsmap/internal/config"
	"github.com/hpungsan/gpsmap/internal/engine"
	"github.com/hpungsan/gpsmap/internal/errors"
	"github.com/hpungsan/gpsmap/internal/logging"
	"github.com/hpungsan/gpsmap/internal/metrics"
	"github.com/hpungsan/gpsmap/internal/potfile"
	"github.com/hpungsan/gpsmap/internal/report"
	"github.com/hpungsan/gpsmap/internal/watch"
	"github.com/hpungsan/gpsmap/internal/web"
)

// appState is the configuration shared by all commands. --config replaces
// it before any command runs.
type appState struct {
	cfg     *config.Config
	cfgPath string
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(cfg *config.Config, cfgPath string) *cli.App {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	st := &appState{cfg: cfg, cfgPath: cfgPath}

	app := &cli.App{
		Name:    "gpsmap",
		Usage:   "Map captured handshakes using their GPS position files",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Config file path (default ~/.gpsmap/config.json)"},
			&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Usage: "Handshakes directory"},
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging"},
		},
		Before: func(c *cli.Context) error {
			if !c.IsSet("config") {
				return nil
			}
			loaded, err := config.Load(c.String("config"))
			if err != nil {
				return outputError(err)
			}
			st.cfg = loaded
			st.cfgPath = c.String("config")
			return nil
		},
		Commands: []*cli.Command{
			scanCmd(st),
			reportCmd(st),
			credentialsCmd(st),
			serveCmd(st),
			analyzeCmd(st),
			configCmd(st),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// scanCmd creates the scan command.
func scanCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "Scan the handshakes directory and print the access points as JSON",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "skipped", Usage: "Also print the position files that could not be used"},
		},
		Action: func(c *cli.Context) error {
			e, logger, err := st.engine(c, nil)
			if err != nil {
				return outputError(err)
			}
			defer func() { _ = logger.Sync() }()

			s := e.NewSession()
			data, err := e.Scan(c.Context, s, false)
			if err != nil {
				return outputError(err)
			}

			if c.Bool("skipped") {
				return outputJSON(map[string]any{
					"positions": data,
					"skipped":   report.SkippedFiles(s.Skipped()),
				})
			}
			return outputJSON(data)
		},
	}
}

// reportCmd creates the report command.
func reportCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Print a summary of the handshakes directory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "markdown", Usage: "Output format: markdown|html"},
		},
		Action: func(c *cli.Context) error {
			format := c.String("format")
			if format != "markdown" && format != "html" {
				return outputError(errors.NewInvalidRequest("format must be markdown or html"))
			}

			e, logger, err := st.engine(c, nil)
			if err != nil {
				return outputError(err)
			}
			defer func() { _ = logger.Sync() }()

			s := e.NewSession()
			data, err := e.Scan(c.Context, s, false)
			if err != nil {
				return outputError(err)
			}

			md := report.Summarize(e.Dir(), data, s.Skipped(), e.Credentials()).Markdown()
			if format == "html" {
				_, err = fmt.Fprint(os.Stdout, report.RenderHTML(md))
			} else {
				_, err = fmt.Fprint(os.Stdout, md)
			}
			return err
		},
	}
}

// credentialsCmd creates the credentials command.
func credentialsCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:  "credentials",
		Usage: "Load the potfiles and print the number of credentials per source",
		Action: func(c *cli.Context) error {
			e, logger, err := st.engine(c, nil)
			if err != nil {
				return outputError(err)
			}
			defer func() { _ = logger.Sync() }()

			n, err := e.LoadCredentials()
			if err != nil {
				return outputError(err)
			}

			return outputJSON(struct {
				Count    int                    `json:"count"`
				BySource map[potfile.Source]int `json:"by_source"`
			}{n, e.Credentials().Counts()})
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the map web server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "Bind address"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Listen port"},
			&cli.BoolFlag{Name: "watch", Usage: "Reload potfiles when they change"},
		},
		Action: func(c *cli.Context) error {
			host := st.cfg.Host
			if c.IsSet("host") {
				host = c.String("host")
			}
			port := st.cfg.Port
			if c.IsSet("port") {
				port = c.Int("port")
			}
			if port < 0 || port > 65535 {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("invalid port %d", port)))
			}

			m := metrics.New()
			e, logger, err := st.engine(c, m)
			if err != nil {
				return outputError(err)
			}
			defer func() { _ = logger.Sync() }()

			if _, err := e.LoadCredentials(); err != nil {
				logger.Warn("credentials not loaded", zap.Error(err))
			}

			if st.cfg.Watch || c.Bool("watch") {
				w, err := watch.New(e.Dir(), e, logger)
				if err != nil {
					return outputError(err)
				}
				if err := w.Start(c.Context); err != nil {
					return outputError(err)
				}
				defer w.Stop()
			}

			srv, err := web.NewServer(e, m, logger, host, port)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			return web.Run(c.Context, srv, logger)
		},
	}
}

// analyzeCmd creates the analyze command.
func analyzeCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Check which cracking tools can use each capture file",
		ArgsUsage: "[folder]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "delete", Usage: "Delete capture files no tool can use"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Show packet count and size"},
			&cli.BoolFlag{Name: "json", Usage: "Print the report as JSON"},
		},
		Action: func(c *cli.Context) error {
			folder := st.dir(c)
			if c.NArg() > 0 {
				folder = c.Args().First()
			}

			logger, err := st.logger(c)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			defer func() { _ = logger.Sync() }()

			a := analyzer.New(analyzer.ExecRunner{Timeout: analyzer.DefaultTimeout}, logger)
			rep, err := a.Analyze(c.Context, folder, analyzer.Options{
				Delete:  c.Bool("delete"),
				Verbose: c.Bool("verbose"),
			})
			if err != nil {
				return outputError(err)
			}

			if c.Bool("json") {
				return outputJSON(rep)
			}
			rep.WriteText(os.Stdout, c.Bool("verbose"))
			return nil
		},
	}
}

// configCmd creates the config command.
func configCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show or change the configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the effective configuration",
				Action: func(c *cli.Context) error {
					return outputJSON(st.cfg)
				},
			},
			{
				Name:  "set",
				Usage: "Persist values to the config file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dir", Usage: "Handshakes directory"},
					&cli.StringFlag{Name: "host", Usage: "Bind address"},
					&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Listen port"},
					&cli.BoolFlag{Name: "watch", Usage: "Reload potfiles when they change"},
					&cli.IntFlag{Name: "workers", Usage: "Concurrent position file parsers"},
					&cli.IntFlag{Name: "cache-size", Usage: "Parsed record cache size"},
				},
				Action: func(c *cli.Context) error {
					if st.cfgPath == "" {
						return outputError(errors.NewInvalidRequest("no config file path"))
					}
					cfg, err := config.Load(st.cfgPath)
					if err != nil {
						return outputError(err)
					}

					if c.IsSet("dir") {
						cfg.HandshakesDir = c.String("dir")
					}
					if c.IsSet("host") {
						cfg.Host = c.String("host")
					}
					if c.IsSet("port") {
						p := c.Int("port")
						if p <= 0 || p > 65535 {
							return outputError(errors.NewInvalidRequest(fmt.Sprintf("invalid port %d", p)))
						}
						cfg.Port = p
					}
					if c.IsSet("watch") {
						cfg.Watch = c.Bool("watch")
					}
					if c.IsSet("workers") {
						cfg.Workers = c.Int("workers")
					}
					if c.IsSet("cache-size") {
						cfg.CacheSize = c.Int("cache-size")
					}

					if err := config.Save(st.cfgPath, cfg); err != nil {
						return outputError(err)
					}
					st.cfg = cfg
					return outputJSON(cfg)
				},
			},
		},
	}
}

// dir returns the handshakes directory: --dir wins over the config file.
func (st *appState) dir(c *cli.Context) string {
	if d := c.String("dir"); d != "" {
		return d
	}
	return st.cfg.HandshakesDir
}

func (st *appState) logger(c *cli.Context) (*zap.Logger, error) {
	return logging.New(st.cfg.Debug || c.Bool("debug"))
}

// engine builds an engine for the selected directory from the config.
func (st *appState) engine(c *cli.Context, m *metrics.Metrics) (*engine.Engine, *zap.Logger, error) {
	logger, err := st.logger(c)
	if err != nil {
		return nil, nil, errors.NewInternal(err)
	}
	e, err := engine.New(st.dir(c),
		engine.WithCacheSize(st.cfg.CacheSize),
		engine.WithWorkers(st.cfg.Workers),
		engine.WithLogger(logger),
		engine.WithMetrics(m),
	)
	if err != nil {
		return nil, nil, err
	}
	return e, logger, nil
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var gErr *errors.GPSMapError
	if stderrors.As(err, &gErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", gErr.Code, gErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
