package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"notifyrelay/internal/cli/output"
	"notifyrelay/internal/cli/prompt"
	"notifyrelay/internal/config"
	"notifyrelay/internal/daemon"
	"notifyrelay/internal/daemon/launchd"
	"notifyrelay/internal/daemon/systemd"
	"notifyrelay/internal/storage"
)

// supervisorFor picks the platform service manager.
func supervisorFor(goos, home string) (daemon.Supervisor, error) {
	switch goos {
	case "darwin":
		return launchd.New(home), nil
	case "linux":
		return systemd.New(home), nil
	}
	return nil, fmt.Errorf("background service is not supported on %s", goos)
}

// openAudit opens the audit store named by master.json's audit section.
// It returns nil when the section is absent or disabled.
func openAudit(store *config.Store, g *globals) (storage.Store, error) {
	master, err := store.ReadMaster()
	if err != nil || master == nil || master.Audit == nil {
		return nil, nil
	}
	a := master.Audit
	path := a.Path
	if path == "" {
		name := "audit.jsonl"
		if a.Driver == "sqlite" {
			name = "audit.db"
		}
		path = filepath.Join(store.Dir, name)
	}
	if path, err = config.ExpandHome(path); err != nil {
		return nil, err
	}
	busy, err := config.DurationOrDefault("audit.busy_timeout", a.BusyTimeout, 0)
	if err != nil {
		return nil, err
	}
	return storage.Open(storage.Config{Driver: a.Driver, Path: path, BusyTimeout: busy}, g.cliLogger())
}

// withManager builds a Manager for one command and releases it afterwards.
func withManager(g *globals, fn func(m *daemon.Manager) error) error {
	store, err := g.store()
	if err != nil {
		return err
	}
	env, err := g.env(store)
	if err != nil {
		return err
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home dir: %w", err)
	}
	sup, err := supervisorFor(runtime.GOOS, home)
	if err != nil {
		return err
	}
	audit, err := openAudit(store, g)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	if audit != nil {
		defer audit.Close()
	}
	m := daemon.NewManager(store, sup,
		daemon.WithLogger(g.cliLogger()),
		daemon.WithHome(home),
		daemon.WithEnv(env),
		daemon.WithAudit(audit),
	)
	return fn(m)
}

func newDaemonCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the relay background service",
	}

	var force bool
	install := &cobra.Command{
		Use:   "install",
		Short: "Install and start the relay as a background service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonInstall(cmd, g, force)
		},
	}
	install.Flags().BoolVarP(&force, "force", "f", false, "reinstall without asking")

	simple := func(use, short, done string, op func(*daemon.Manager, *cobra.Command) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withManager(g, func(m *daemon.Manager) error {
					if err := op(m, cmd); err != nil {
						return err
					}
					printf(cmd, "%s\n", done)
					return nil
				})
			},
		}
	}

	cmd.AddCommand(
		install,
		simple("start", "Start the service", "Service started", func(m *daemon.Manager, c *cobra.Command) error {
			return m.Start(c.Context())
		}),
		simple("stop", "Stop the service", "Service stopped", func(m *daemon.Manager, c *cobra.Command) error {
			return m.Stop(c.Context())
		}),
		simple("restart", "Stop, wait a second, start", "Service restarted", func(m *daemon.Manager, c *cobra.Command) error {
			printf(c, "Restarting...\n")
			return m.Restart(c.Context())
		}),
		simple("uninstall", "Unload the service and remove its files", "Service uninstalled", func(m *daemon.Manager, c *cobra.Command) error {
			return m.Uninstall(c.Context())
		}),
		newDaemonStatusCmd(g),
		newDaemonLogsCmd(g),
		newDaemonHistoryCmd(g),
	)
	return cmd
}

func runDaemonInstall(cmd *cobra.Command, g *globals, force bool) error {
	return withManager(g, func(m *daemon.Manager) error {
		rec, err := m.Install(cmd.Context(), daemon.InstallOptions{
			Force: force,
			Confirm: func(existing *daemon.Record) (bool, error) {
				ok, err := prompt.Confirm(fmt.Sprintf("Service %s is already installed; reinstall", existing.Label), false)
				if errors.Is(err, prompt.ErrAborted) {
					return false, nil
				}
				return ok, err
			},
		})
		if err != nil {
			return err
		}
		printf(cmd, "Service installed (%s)\n\n", rec.Supervisor)
		output.PrintTable(cmd.OutOrStdout(), output.KeyValues{
			{"Label", rec.Label},
			{"Descriptor", rec.DescriptorPath},
			{"Log", rec.LogPath},
			{"Error log", rec.ErrorLogPath},
		})
		printf(cmd, "\nManage it with: notifyrelay daemon status|stop|restart|logs|uninstall\n")
		return nil
	})
}

// statusView is the printable form of daemon.Status.
type statusView struct {
	Running        bool      `json:"running" yaml:"running"`
	PID            int       `json:"pid,omitempty" yaml:"pid,omitempty"`
	Label          string    `json:"label" yaml:"label"`
	Supervisor     string    `json:"supervisor" yaml:"supervisor"`
	DescriptorPath string    `json:"descriptorPath" yaml:"descriptorPath"`
	LogPath        string    `json:"logPath" yaml:"logPath"`
	ErrorLogPath   string    `json:"errorLogPath" yaml:"errorLogPath"`
	StartedAt      time.Time `json:"startedAt,omitzero" yaml:"startedAt,omitempty"`
	RSSBytes       uint64    `json:"rssBytes,omitempty" yaml:"rssBytes,omitempty"`
}

func (v statusView) Headers() []string { return output.KeyValues{}.Headers() }

func (v statusView) Rows() [][]string {
	state := "stopped"
	if v.Running {
		state = "running"
	}
	kv := output.KeyValues{
		{"State", state},
		{"Label", v.Label},
		{"Supervisor", v.Supervisor},
	}
	if v.PID > 0 {
		kv = append(kv, [2]string{"PID", strconv.Itoa(v.PID)})
	}
	if !v.StartedAt.IsZero() {
		kv = append(kv, [2]string{"Uptime", time.Since(v.StartedAt).Truncate(time.Second).String()})
	}
	if v.RSSBytes > 0 {
		kv = append(kv, [2]string{"Memory", fmt.Sprintf("%.1f MiB", float64(v.RSSBytes)/(1<<20))})
	}
	kv = append(kv,
		[2]string{"Descriptor", v.DescriptorPath},
		[2]string{"Log", v.LogPath},
		[2]string{"Error log", v.ErrorLogPath},
	)
	return kv.Rows()
}

func newDaemonStatusCmd(g *globals) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the service is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			return withManager(g, func(m *daemon.Manager) error {
				st, err := m.Status(cmd.Context())
				if err != nil {
					return err
				}
				return output.Print(cmd.OutOrStdout(), f, statusView(st))
			})
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "table", "output format (table, json, yaml)")
	return cmd
}

func newDaemonLogsCmd(g *globals) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the last lines of the service log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withManager(g, func(m *daemon.Manager) error {
				out, err := m.Logs(cmd.Context(), lines)
				if err != nil {
					return err
				}
				for _, l := range out {
					printf(cmd, "%s\n", l)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", daemon.DefaultLogLines, "number of lines")
	return cmd
}

func newDaemonHistoryCmd(g *globals) *cobra.Command {
	var (
		limit  int
		format string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent lifecycle operations from the audit store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			return withManager(g, func(m *daemon.Manager) error {
				entries, err := m.History(cmd.Context(), limit)
				if errors.Is(err, storage.ErrDisabled) {
					return errors.New(`audit is disabled; set "audit": {"driver": "file"} in master.json`)
				}
				if err != nil {
					return err
				}
				if f != output.FormatTable {
					return output.Print(cmd.OutOrStdout(), f, entries)
				}
				t := output.NewTable("Time", "Action", "Result", "Took")
				for _, e := range entries {
					result := "ok"
					if !e.OK {
						result = e.Error
					}
					t.AddRow(e.At.Local().Format(time.DateTime), e.Action, result, (time.Duration(e.TookMS) * time.Millisecond).String())
				}
				output.PrintTable(cmd.OutOrStdout(), t)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	cmd.Flags().StringVarP(&format, "output", "o", "table", "output format (table, json, yaml)")
	return cmd
}
