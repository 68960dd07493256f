package serve

import (
	"context"
	cmdUtil "github.com/ValentinKolb/s2sgate/cmd/util"
	"github.com/ValentinKolb/s2sgate/s2s/common"
	"github.com/ValentinKolb/s2sgate/s2s/peer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var (
	serveCmdConfig = &common.PeerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start a Site-to-Site peer",
		Long:    `Start a Site-to-Site peer that serves in-memory ports. Flow files sent to a port are queued until a client receives them. The configuration can be set via command line flags or environment variables. The format of the environment variables is S2S_<flag> (e.g. S2S_MAX_QUEUED=1000)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cobra.OnInitialize(cmdUtil.InitConfig)

	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:9999", cmdUtil.WrapString("The address on which the peer will listen (e.g. localhost:9999, /tmp/s2s.sock, ...)"))

	key = "transport"
	ServeCmd.PersistentFlags().String(key, "tcp", cmdUtil.WrapString("Transport to use (tcp, unix)"))

	key = "ports"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Comma-separated list of ports to serve. Format: NAME=UUID (e.g. ingest=3f0e7a52-1c9b-4d8e-a6f1-52c0d9b8e713)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Duration(key, 30*time.Second, cmdUtil.WrapString("Time budget of a single handshake or transaction"))

	key = "max-queued"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Number of queued flow files per port from which senders are told that the destination is full (0 = unbounded)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address on which prometheus metrics are served (e.g. :9100, empty = disabled)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the peer configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	ports, err := cmdUtil.ParsePorts(viper.GetString("ports"))
	if err != nil {
		return err
	}

	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.Transport = viper.GetString("transport")
	serveCmdConfig.Ports = ports
	serveCmdConfig.Timeout = viper.GetDuration("timeout")
	serveCmdConfig.MaxQueued = viper.GetInt("max-queued")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	return common.InitLoggers(serveCmdConfig.LogLevel)
}

// run starts the peer and blocks until the process is interrupted
func run(_ *cobra.Command, _ []string) error {
	listeners, err := cmdUtil.GetListenerFactory(serveCmdConfig.Transport)
	if err != nil {
		return err
	}

	cmdUtil.PrintConfig("Starting Site-to-Site peer", serveCmdConfig)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := peer.NewPeer(*serveCmdConfig, listeners)
	if err := p.Start(); err != nil {
		return err
	}
	cmdUtil.ServeMetrics(ctx, serveCmdConfig.MetricsEndpoint)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return p.Close()
		case <-ticker.C:
			for _, q := range p.Ports() {
				cmdUtil.Logger.Infof("port %s (%s): %d flow files queued", q.Name(), q.ID(), q.Len())
			}
		}
	}
}
