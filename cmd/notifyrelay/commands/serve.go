package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"notifyrelay/internal/config"
	"notifyrelay/internal/relay"
	"notifyrelay/internal/resolve"
	"notifyrelay/internal/sink"
	logx "notifyrelay/pkg/logx"
)

type serveOptions struct {
	host     string
	port     int
	portScan int
}

func newServeCmd(g *globals) *cobra.Command {
	o := &serveOptions{}
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start-master"},
		Short:   "Run the notification relay in the foreground",
		Long: `Run the notification relay in the foreground.

Host and port come from master.json, then HOST/PORT, then 0.0.0.0:8079.
If the port is taken the next free one is used. master.json is watched;
notification, logging and sink changes apply without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, g, o, cmd.Flags().Changed("host"), cmd.Flags().Changed("port"))
		},
	}
	cmd.Flags().StringVar(&o.host, "host", "", "listen host (overrides master.json and HOST)")
	cmd.Flags().IntVar(&o.port, "port", 0, "preferred listen port (overrides master.json and PORT; 0 picks any free port)")
	cmd.Flags().IntVar(&o.portScan, "port-scan", relay.DefaultPortScan, "how many following ports to try when the preferred one is taken")
	return cmd
}

// listenAddr picks host and port: flags, then master.json, then the
// environment, then defaults.
func listenAddr(o *serveOptions, hostFlag, portFlag bool, master *config.MasterConfig, env config.Env) (string, int) {
	host, port := config.DefaultHost, config.DefaultPort
	if env.HostSet {
		host = env.Host
	}
	if env.PortSet {
		port = env.Port
	}
	if master != nil {
		host, port = master.Host, master.Port
	}
	if hostFlag {
		host = o.host
	}
	if portFlag {
		port = o.port
	}
	return host, port
}

func runServe(ctx context.Context, g *globals, o *serveOptions, hostFlag, portFlag bool) error {
	store, err := g.store()
	if err != nil {
		return err
	}
	env, err := g.env(store)
	if err != nil {
		return err
	}

	master, err := store.ReadMaster()
	if err != nil {
		return err
	}
	logSvc, log := logx.New(master.LogxConfig(env.LogLevel))
	defer logSvc.Close()

	var watcher *config.Watcher
	if master != nil {
		watcher = config.NewWatcher(store.MasterPath(), log)
		if master, err = watcher.Load(); err != nil {
			return err
		}
	} else {
		log.Info("no master config; using environment and defaults", logx.String("path", store.MasterPath()))
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}
	resolver := resolve.New(master.NotificationOrEmpty(), env.Notification, cwd)

	var sinkCfg *config.SinkConfig
	if master != nil {
		sinkCfg = master.Sinks
	}
	sk, err := sink.FromConfig(sinkCfg)
	if err != nil {
		return err
	}
	timeout := sink.DefaultDeliveryTimeout
	if sinkCfg != nil {
		if timeout, err = config.DurationOrDefault("sinks.delivery_timeout", sinkCfg.DeliveryTimeout, timeout); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := relay.NewMetrics(reg)

	dispatcher := sink.NewDispatcher(ctx, sk,
		sink.WithLogger(log),
		sink.WithObserver(metrics),
		sink.WithDeliveryTimeout(timeout),
	)
	metrics.TrackInFlight(dispatcher.InFlight)

	opts := []relay.Option{relay.WithMetrics(metrics, reg)}
	if watcher != nil {
		watcher.SetValidator(func(_ context.Context, cfg *config.MasterConfig) error {
			_, err := sink.FromConfig(cfg.Sinks)
			return err
		})
		opts = append(opts, relay.WithWatcher(watcher, logSvc, env.LogLevel))
	}

	host, port := listenAddr(o, hostFlag, portFlag, master, env)
	log.Info("relay starting",
		logx.String("version", Version),
		logx.String("sink", sk.Name()),
		logx.String("config_dir", store.Dir),
	)
	srv := relay.New(relay.Config{Host: host, Port: port, PortScan: o.portScan}, resolver, dispatcher, log, opts...)
	return srv.Run(ctx)
}
