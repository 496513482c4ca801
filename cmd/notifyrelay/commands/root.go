// Package commands implements the notifyrelay command line.
package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"notifyrelay/internal/config"
	logx "notifyrelay/pkg/logx"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// globals are the persistent flags shared by every command.
type globals struct {
	configDir string
	envFile   string
	logLevel  string
}

func (g *globals) store() (*config.Store, error) {
	dir := strings.TrimSpace(g.configDir)
	if dir == "" {
		return newDefaultStore()
	}
	dir, err := config.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	return config.NewStore(dir), nil
}

func newDefaultStore() (*config.Store, error) {
	dir, err := config.DefaultDir()
	if err != nil {
		return nil, err
	}
	return config.NewStore(dir), nil
}

// cliLogger is used by short-lived commands; serve builds its own.
func (g *globals) cliLogger() logx.Logger {
	level := g.logLevel
	if level == "" {
		level = "warn"
	}
	return logx.NewConsole(level)
}

// env loads the environment tier, with <configDir>/.env underneath the
// process environment unless --env-file says otherwise.
func (g *globals) env(store *config.Store) (config.Env, error) {
	path := g.envFile
	if path == "" {
		path = filepath.Join(store.Dir, ".env")
	}
	env, err := config.LoadEnv(path, g.cliLogger())
	if err != nil {
		return config.Env{}, err
	}
	if g.logLevel != "" {
		env.LogLevel = g.logLevel
	}
	return env, nil
}

// NewRootCmd builds the full command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "notifyrelay",
		Short: "Relay notifications from agents to your desktop",
		Long: `notifyrelay runs a small HTTP relay ("master") that turns notify requests
from agents into desktop, D-Bus or Telegram notifications, and manages the
relay as a background service (launchd on macOS, systemd on Linux).

Use "notifyrelay [command] --help" for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configDir, "config-dir", "", "config directory (default: $"+config.EnvConfigDir+" or ~/"+config.DirName+")")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", "", "dotenv file read underneath the environment (default: <config-dir>/.env)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(g),
		newInstallCmd(g),
		newDaemonCmd(g),
		newNotifyCmd(g),
		newHealthCmd(g),
		newVersionCmd(),
	)
	root.CompletionOptions.DisableDefaultCmd = true
	return root
}

func Execute() error {
	return NewRootCmd().Execute()
}

func printf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
