package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"notifyrelay/internal/agent"
	"notifyrelay/internal/cli/prompt"
	"notifyrelay/internal/config"
	"notifyrelay/internal/health"
)

func newInstallCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Write master/agent config or install the background service",
	}
	cmd.AddCommand(newInstallMasterCmd(g), newInstallAgentCmd(g), newInstallDaemonCmd(g))
	return cmd
}

// masterURL renders the URL recorded in master.json.
func masterURL(host string, port int) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

func newInstallMasterCmd(g *globals) *cobra.Command {
	var (
		host  string
		port  int
		url   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "master",
		Short: "Write master.json for the machine that shows notifications",
		Long: `Write master.json for the machine that shows notifications.

Without --host/--port the values are asked interactively.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := g.store()
			if err != nil {
				return err
			}
			existing, err := store.ReadMaster()
			if err != nil {
				printf(cmd, "Warning: %v; it will be replaced\n", err)
				existing = nil
			}
			if existing != nil {
				ok, err := prompt.ConfirmWithForce("master.json exists; overwrite host/port", force)
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("install master cancelled")
				}
			}

			interactive := !cmd.Flags().Changed("host") && !cmd.Flags().Changed("port")
			if interactive {
				if existing != nil {
					host, port = existing.Host, existing.Port
				}
				if host, err = prompt.Input("Listen host", host); err != nil {
					return err
				}
				if port, err = prompt.InputPort("Listen port", port); err != nil {
					return err
				}
			}
			if err := prompt.ValidatePort(strconv.Itoa(port)); err != nil {
				return fmt.Errorf("--port: %w", err)
			}

			cfg := &config.MasterConfig{}
			if existing != nil {
				*cfg = *existing
			}
			cfg.Host = strings.TrimSpace(host)
			cfg.Port = port
			cfg.URL = url
			if cfg.URL == "" {
				cfg.URL = masterURL(cfg.Host, cfg.Port)
			}
			if err := store.WriteMaster(cfg); err != nil {
				return err
			}

			printf(cmd, "Saved %s\n\n", store.MasterPath())
			printf(cmd, "Start the relay:\n  notifyrelay serve\nor install it as a service:\n  notifyrelay install daemon\n\n")
			printf(cmd, "The relay will listen on %s\n", cfg.URL)
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", config.DefaultHost, "listen host")
	cmd.Flags().IntVar(&port, "port", config.DefaultPort, "listen port")
	cmd.Flags().StringVar(&url, "url", "", "URL agents use to reach this relay (default: http://<host>:<port>)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing master.json without asking")
	return cmd
}

func newInstallAgentCmd(g *globals) *cobra.Command {
	var (
		url          string
		autoUpdate   bool
		settingsPath string
		force        bool
	)
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Point the agent's hooks at a relay and write agent.json",
		Long: `Point the agent's hooks at a relay and write agent.json.

The relay's /health endpoint is checked first; if it does not answer you
are asked whether to continue (--force skips the question).

With --auto-update the agent's settings file is backed up and a hook that
posts to <relay>/notify is merged into it, replacing an earlier one.
Otherwise the hook is printed for you to add by hand.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := g.store()
			if err != nil {
				return err
			}
			interactive := url == ""
			if interactive {
				if url, err = prompt.InputURL("Relay URL", masterURL("127.0.0.1", config.DefaultPort)); err != nil {
					return err
				}
			}
			if err := prompt.ValidateURL(url); err != nil {
				return fmt.Errorf("--url: %w", err)
			}
			url = strings.TrimRight(strings.TrimSpace(url), "/")

			printf(cmd, "Checking %s/health ...\n", url)
			if health.Check(cmd.Context(), url) {
				printf(cmd, "Relay is reachable\n")
			} else {
				printf(cmd, "Warning: cannot reach the relay at %s; make sure it is running and reachable\n", url)
				ok, err := prompt.ConfirmWithForce("Continue anyway", force)
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("install agent cancelled")
				}
			}

			if settingsPath == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("resolve home dir: %w", err)
				}
				settingsPath = agent.DefaultSettingsPath(home)
			} else if settingsPath, err = config.ExpandHome(settingsPath); err != nil {
				return err
			}

			if interactive && !cmd.Flags().Changed("auto-update") {
				if autoUpdate, err = prompt.Confirm("Update "+settingsPath+" automatically", true); err != nil {
					return err
				}
			}
			if autoUpdate {
				res, err := agent.Install(settingsPath, url, time.Now())
				if err != nil {
					printf(cmd, "Warning: could not update %s: %v\n", settingsPath, err)
					if err := printManualHook(cmd, settingsPath, url); err != nil {
						return err
					}
				} else {
					if res.BackupPath != "" {
						printf(cmd, "Backed up %s to %s\n", res.SettingsPath, res.BackupPath)
					}
					verb := "Added"
					if res.Replaced {
						verb = "Replaced"
					}
					printf(cmd, "%s the %s hook in %s\n", verb, agent.DefaultMatcher, res.SettingsPath)
				}
			} else if err := printManualHook(cmd, settingsPath, url); err != nil {
				return err
			}

			if err := store.WriteAgent(&config.AgentConfig{MasterURL: url, AutoUpdate: autoUpdate}); err != nil {
				return err
			}
			printf(cmd, "Saved %s\n\n", store.AgentPath())
			printf(cmd, "Verify:\n  curl %s/health\n  notifyrelay notify --title test --message hello --category info\n", url)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "relay URL, e.g. http://192.168.1.10:8079")
	cmd.Flags().BoolVar(&autoUpdate, "auto-update", false, "merge the relay hook into the agent's settings file")
	cmd.Flags().StringVar(&settingsPath, "settings", "", "agent settings file (default ~/.claude/settings.json)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "continue even if the relay is unreachable")
	return cmd
}

func printManualHook(cmd *cobra.Command, settingsPath, url string) error {
	b, err := json.MarshalIndent(agent.HookFor(url), "", "  ")
	if err != nil {
		return err
	}
	printf(cmd, "Add this entry to the hooks in %s:\n\n%s\n\n", settingsPath, b)
	return nil
}

func newInstallDaemonCmd(g *globals) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Install the relay as a background service (same as: daemon install)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonInstall(cmd, g, force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "reinstall without asking")
	return cmd
}
