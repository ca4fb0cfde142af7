package main

import (
	"fmt"
	"os"

	"github.com/hpungsan/gpsmap/internal/config"
	"github.com/hpungsan/gpsmap/internal/engine"
	"github.com/hpungsan/gpsmap/internal/logging"
	"github.com/hpungsan/gpsmap/internal/mcp"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"scan": true, "report": true, "credentials": true,
	"serve": true, "analyze": true, "config": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode(args []string) bool {
	if len(args) < 2 {
		return false // No args → MCP server
	}
	arg := args[1]
	if cliCommands[arg] {
		return true
	}
	// Global flags before the subcommand
	if len(arg) > 1 && arg[0] == '-' {
		return true
	}
	return false
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   __ _ _ __  ___ _ __ ___   __ _ _ __
  / _' | '_ \/ __| '_ ' _ \ / _' | '_ \
 | (_| | |_) \__ \ | | | | | (_| | |_) |
  \__, | .__/|___/_| |_| |_|\__,_| .__/
   __/ | |                       | |
  |___/|_|                       |_|

  Handshake position map

  Usage: gpsmap <command> [options]
         gpsmap --help

  MCP server mode requires piped input.`)
}

// loadConfig reads the user config and any .gpsmap/config.json found
// walking up from the working directory.
func loadConfig() (*config.Config, string, error) {
	path, err := config.DefaultPath()
	if err != nil {
		return nil, "", fmt.Errorf("could not determine home directory: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	cfg, err := config.LoadWithLocal(path, cwd)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	cfg, cfgPath, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	if isCLIMode(os.Args) {
		app := newCLIApp(cfg, cfgPath)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'gpsmap --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := runMCP(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// runMCP serves the MCP tools over stdio. Logs go to stderr so they never
// interleave with protocol messages.
func runMCP(cfg *config.Config) error {
	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		logger.Sugar().Warnw("unknown tools in disabled_tools", "tools", unknown)
	}

	e, err := engine.New(cfg.HandshakesDir,
		engine.WithCacheSize(cfg.CacheSize),
		engine.WithWorkers(cfg.Workers),
		engine.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	return mcp.Run(e, cfg, Version)
}
