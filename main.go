package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/moyoez/partyline-console/api"
	"github.com/moyoez/partyline-console/api/notifyhub"
	"github.com/moyoez/partyline-console/command"
	"github.com/moyoez/partyline-console/console"
	"github.com/moyoez/partyline-console/device"
	"github.com/moyoez/partyline-console/discover"
	"github.com/moyoez/partyline-console/mirror"
	"github.com/moyoez/partyline-console/notify"
	"github.com/moyoez/partyline-console/telemetry"
	"github.com/moyoez/partyline-console/tool"
	"github.com/moyoez/partyline-console/types"
)

var (
	version = "0.1.0"

	flags   types.Config
	appCfg  types.AppConfig
	base    string
	probe   bool
	waitFor time.Duration

	scanIface string
	scanPort  int
	scanProbe bool
)

var rootCmd = &cobra.Command{
	Use:           "partyline",
	Short:         "Control console for a multicast audio intercom",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the device and serve the local dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsole()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show run state and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

var startCmd = &cobra.Command{
	Use:       "start {tx|rx}",
	Short:     "Start the sender or the receiver",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"tx", "rx"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return roleAction(cmd.Context(), args[0], command.StartTx, command.StartRx)
	},
}

var stopCmd = &cobra.Command{
	Use:       "stop {tx|rx}",
	Short:     "Stop the sender or the receiver",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"tx", "rx"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return roleAction(cmd.Context(), args[0], command.StopTx, command.StopRx)
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart both roles with the saved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd.Context(), command.RestartBoth)
	},
}

var restartBackendCmd = &cobra.Command{
	Use:   "restart-backend",
	Short: "Restart the device service itself",
	RunE: func(cmd *cobra.Command, args []string) error {
		return restartBackend(cmd.Context())
	},
}

var monitorCmd = &cobra.Command{
	Use:       "monitor {start|stop}",
	Short:     "Start or stop the device's local mic monitor",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"start", "stop"},
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "start":
			return runAction(cmd.Context(), command.StartMicMonitor)
		case "stop":
			return runAction(cmd.Context(), command.StopMicMonitor)
		}
		return fmt.Errorf("unknown monitor action %q", args[0])
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download-mix",
	Short: "Download the recorded receive mix",
	RunE: func(cmd *cobra.Command, args []string) error {
		return downloadMix(cmd.Context())
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the device's capture devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listDevices(cmd.Context())
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find intercom units on the local networks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return discoverUnits(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("partyline console v%s\n", version)
	},
}

func init() {
	tool.BindFlags(rootCmd.PersistentFlags(), &flags)
	tool.BindRunFlags(runCmd.Flags(), &flags)
	tool.BindDownloadFlags(downloadCmd.Flags(), &flags)
	statusCmd.Flags().BoolVar(&probe, "probe", false, "also ping the device host")
	discoverCmd.Flags().StringVar(&scanIface, "iface", "", "only scan the networks of this interface")
	discoverCmd.Flags().IntVar(&scanPort, "device-port", discover.DefaultPort, "port the intercom API listens on")
	discoverCmd.Flags().BoolVar(&scanProbe, "probe", false, "ping each host first and skip silent ones")
	restartBackendCmd.Flags().DurationVar(&waitFor, "wait", 0, "wait up to this long for the device host to answer pings again")

	rootCmd.AddCommand(runCmd, statusCmd, startCmd, stopCmd, restartCmd, restartBackendCmd,
		monitorCmd, downloadCmd, devicesCmd, discoverCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads .env and the settings file, then resolves the base address:
// --base, then PARTYLINE_API_BASE, then the settings file, else same-origin.
func setup() error {
	tool.InitLogger()
	tool.LoadEnv()

	cfg, err := tool.LoadConfig(flags.UseConfigPath)
	if err != nil {
		return err
	}
	base = device.ResolveBase(flags.UseBase, tool.BaseFromEnv(), cfg.Base)
	tool.ApplyOverrides(&cfg, flags)
	cfg.Base = base
	appCfg = cfg

	tool.SetLogMode(appCfg.Log)
	if base == "" {
		tool.DefaultLogger.Debugf("No base address configured, using same-origin %s", device.SameOrigin)
	}
	return nil
}

func newSession(hidden bool) *console.Session {
	return console.NewSession(console.Options{
		Base:     base,
		Insecure: appCfg.Insecure,
		Poll:     appCfg.Poll,
		Hidden:   hidden,
	})
}

func runConsole() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session := newSession(flags.Hidden)
	hub := notifyhub.New()

	notifier := notify.New(session.Store, hub, appCfg.NotifySocket)
	defer notifier.Attach()()
	go notifier.Start(ctx)

	if appCfg.Mirror.Broker != "" {
		client, err := mirror.Connect(appCfg.Mirror)
		if err != nil {
			tool.DefaultLogger.Warnf("Telemetry mirror disabled: %v", err)
		} else {
			defer mirror.Disconnect(client)
			m := mirror.New(client, session.Store, appCfg.Mirror.TopicPrefix)
			defer m.Attach()()
			go m.Start(ctx)
		}
	}

	server := api.NewServer(appCfg.DashboardPort, session, hub, appCfg.AllowRemote)
	registry := discover.NewRegistry(discover.DefaultTTL, func(u discover.Unit, isNew bool) {
		hub.Broadcast(discover.Notification(u, isNew))
	})
	server.EnableDiscovery(registry, func(ctx context.Context) ([]discover.Unit, error) {
		hosts, err := discover.Targets(scanIface)
		if err != nil {
			return nil, err
		}
		return discover.Scan(ctx, hosts, discover.Options{Port: scanPort})
	})
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	session.Start()
	defer session.Close()
	tool.DefaultLogger.Infof("Dashboard QR code: %s/api/console/v1/qr", server.DashboardURL())

	select {
	case <-ctx.Done():
		tool.DefaultLogger.Info("Shutting down console...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("dashboard stopped: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func showStatus(ctx context.Context) error {
	session := newSession(true)
	st, err := session.FetchStatus(ctx)
	if err != nil {
		return err
	}
	v := session.View()

	fmt.Printf("Device:  %s\n", session.Client.Origin())
	fmt.Printf("TX:      %s  (%s, %s -> %s:%d)\n", v.TxBadge, describeSource(st.Config), st.Config.TxName, st.Config.TxMulticast, st.Config.TxPort)
	fmt.Printf("RX:      %s  (%s:%d, %s)\n", v.RxBadge, st.Config.RxMulticast, st.Config.RxPort, describeSink(st.Config))
	if err := st.Config.Validate(); err != nil {
		fmt.Printf("Warning: %v\n", err)
	}

	if m, err := session.Client.Metrics(ctx); err == nil {
		fmt.Printf("Mix:     %s  (%.0f pkt/s)\n", telemetry.FormatDB(m.MixLevelDB), m.PPSRecent)
	}
	if p, err := session.Client.Peers(ctx); err == nil {
		for _, peer := range p.Peers {
			d := telemetry.LevelToDisplay(peer.LevelDB)
			fmt.Printf("Peer:    %-12s ssrc=%d %s [%s]\n", peer.Name, peer.SSRC, telemetry.FormatDB(peer.LevelDB), d.Label)
		}
	}

	if probe {
		host, err := tool.HostOf(session.Client.Origin())
		if err != nil {
			return err
		}
		fmt.Printf("Ping:    %v\n", tool.QuickICMPProbe(host, time.Second))
	}
	return nil
}

func describeSource(cfg types.DeviceConfig) string {
	switch tx := cfg.TX.(type) {
	case types.MicSource:
		if tx.Device == "" {
			return "mic, default device"
		}
		return "mic " + tx.Device
	case types.SineSource:
		return fmt.Sprintf("sine %d Hz", tx.Freq)
	}
	return "unknown source"
}

func describeSink(cfg types.DeviceConfig) string {
	if f, ok := cfg.RxSink.(types.FileSink); ok {
		return "file " + f.Path
	}
	return "auto playback"
}

func roleAction(ctx context.Context, role string, tx, rx command.Action) error {
	switch role {
	case "tx":
		return runAction(ctx, tx)
	case "rx":
		return runAction(ctx, rx)
	}
	return fmt.Errorf("unknown role %q, expected tx or rx", role)
}

func runAction(ctx context.Context, a command.Action) error {
	session := newSession(true)
	if err := session.Commands.Run(ctx, a); err != nil {
		return err
	}
	if b := session.Store.Banner(); b != nil {
		fmt.Println(b.Message)
	}
	if _, err := session.FetchStatus(ctx); err != nil {
		return err
	}
	v := session.View()
	fmt.Printf("%s ok. TX %s, RX %s\n", a, v.TxBadge, v.RxBadge)
	return nil
}

func restartBackend(ctx context.Context) error {
	session := newSession(true)
	if err := session.Commands.RestartBackend(ctx); err != nil {
		return err
	}
	fmt.Println(command.RestartBackendNotice)
	if waitFor <= 0 {
		return nil
	}
	host, err := tool.HostOf(session.Client.Origin())
	if err != nil {
		return err
	}
	if !tool.WaitReachable(host, time.Second, waitFor) {
		return fmt.Errorf("%s did not answer within %v", host, waitFor)
	}
	fmt.Printf("%s is reachable again\n", host)
	return nil
}

func downloadMix(ctx context.Context) error {
	session := newSession(true)
	var saved string
	if err := session.Commands.DownloadMix(ctx, command.SaveToDir(appCfg.DownloadDir, func(p string) { saved = p })); err != nil {
		var re *device.ResourceError
		if errors.As(err, &re) && re.Status != 0 {
			return fmt.Errorf("no mix available (%d): %w", re.Status, err)
		}
		return err
	}
	fmt.Printf("Saved %s\n", saved)
	return nil
}

func listDevices(ctx context.Context) error {
	session := newSession(true)
	resp, err := session.Client.AlsaDevices(ctx)
	if err != nil {
		return err
	}
	sort.Slice(resp.Devices, func(i, j int) bool { return resp.Devices[i].ID < resp.Devices[j].ID })
	for _, d := range resp.Devices {
		mark := " "
		if d.ID == resp.Recommended {
			mark = "*"
		}
		fmt.Printf("%s %-16s %s\n", mark, d.ID, d.Desc)
	}
	return nil
}

func discoverUnits(ctx context.Context) error {
	hosts, err := discover.Targets(scanIface)
	if err != nil {
		return err
	}
	if len(hosts) == 0 {
		return errors.New("no usable local IPv4 networks found")
	}
	opts := discover.Options{Port: scanPort, Probe: scanProbe}
	if scanProbe {
		opts.RatePPS = discover.DefaultRatePPS
	}
	units, err := discover.Scan(ctx, hosts, opts)
	if err != nil {
		return err
	}
	if len(units) == 0 {
		fmt.Println("No intercom answered.")
		return nil
	}
	for _, u := range units {
		fmt.Printf("%-28s %-16s TX %-8s RX %-8s %s -> %s:%d\n", u.Origin, u.Name,
			console.BadgeFor(u.TxRunning), console.BadgeFor(u.RxRunning), u.Source, u.Multicast, u.Port)
	}
	fmt.Println("Use --base with one of the addresses above to control a unit.")
	return nil
}
