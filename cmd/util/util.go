package util

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/s2sgate/s2s/common"
	"github.com/ValentinKolb/s2sgate/s2s/transport"
	"github.com/ValentinKolb/s2sgate/s2s/transport/tcp"
	"github.com/ValentinKolb/s2sgate/s2s/transport/unix"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"net/http"
	"strings"
	"time"
)

var Logger = logger.GetLogger("cmd")

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and reads S2S_* environment variables
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("s2s")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Port (client side) configuration
// --------------------------------------------------------------------------

// SetupPortFlags adds the flags of a remote port to a command
func SetupPortFlags(cmd *cobra.Command) {
	key := "host"
	cmd.PersistentFlags().String(key, "localhost", WrapString("Host name of the remote peer (socket path for the unix transport)"))

	key = "port"
	cmd.PersistentFlags().Int(key, 9999, WrapString("Site-to-Site port of the remote peer (ignored for the unix transport)"))

	key = "port-uuid"
	cmd.PersistentFlags().String(key, "", WrapString("Identifier of the remote port (required)"))

	key = "timeout"
	cmd.PersistentFlags().Duration(key, 30*time.Second, WrapString("Time budget of a single handshake and transaction"))

	key = "batch-count"
	cmd.PersistentFlags().Int(key, 0, WrapString("Maximum number of flow files per transaction (0 = no limit)"))

	key = "max-idle"
	cmd.PersistentFlags().Int(key, 8, WrapString("Maximum number of idle connections kept in the pool"))

	key = "max-idle-time"
	cmd.PersistentFlags().Duration(key, 0, WrapString("Idle connections older than this are closed instead of reused (0 = never)"))

	key = "workers"
	cmd.PersistentFlags().Int(key, 1, WrapString("Number of concurrent transactions"))

	key = "metrics-endpoint"
	cmd.PersistentFlags().String(key, "", WrapString("Address on which prometheus metrics are served (e.g. :9100, empty = disabled)"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "info", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	SetupTransportFlags(cmd)
}

// SetupTransportFlags adds the transport selection and socket tuning flags to a command
func SetupTransportFlags(cmd *cobra.Command) {
	key := "transport"
	cmd.PersistentFlags().String(key, "tcp", WrapString("Transport to use (tcp, unix)"))

	key = "transport-dial-timeout"
	cmd.PersistentFlags().Duration(key, 5*time.Second, WrapString("Timeout for establishing a connection"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket write buffer (in KB, only for tcp)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket read buffer (in KB, only for tcp)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval (in seconds, only for tcp)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, 0, WrapString("The linger time (in seconds, only for tcp)"))
}

// GetTransportConfig reads the transport configuration from viper
func GetTransportConfig() common.TransportConfig {
	return common.TransportConfig{
		Name:        viper.GetString("transport"),
		DialTimeout: viper.GetDuration("transport-dial-timeout"),
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
		},
	}
}

// GetPortConfig reads the port configuration from viper
func GetPortConfig(direction common.TransferDirection) (*common.PortConfig, error) {
	rawID := viper.GetString("port-uuid")
	if rawID == "" {
		return nil, common.NewConfigurationError("--port-uuid is required")
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, common.NewConfigurationError("invalid port uuid %q: %v", rawID, err)
	}

	conf := &common.PortConfig{
		Endpoint: common.RemoteEndpoint{
			Host:   viper.GetString("host"),
			Port:   viper.GetInt("port"),
			PortID: id,
		},
		Direction:    direction,
		Timeout:      viper.GetDuration("timeout"),
		Transmitting: true,
		BatchCount:   viper.GetInt("batch-count"),
		MaxIdle:      viper.GetInt("max-idle"),
		MaxIdleTime:  viper.GetDuration("max-idle-time"),
		Transport:    GetTransportConfig(),
		LogLevel:     viper.GetString("log-level"),
	}

	if err := conf.Endpoint.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// GetStreamFactory creates the client side transport based on configuration
func GetStreamFactory(config common.TransportConfig) (transport.IStreamFactory, error) {
	switch config.Name {
	case "tcp":
		return tcp.NewTCPStreamFactory(config), nil
	case "unix":
		return unix.NewUnixStreamFactory(), nil
	default:
		return nil, common.NewConfigurationError("invalid transport %s", config.Name)
	}
}

// GetListenerFactory creates the peer side transport based on its name
func GetListenerFactory(name string) (transport.IListenerFactory, error) {
	switch name {
	case "tcp":
		return tcp.NewTCPListenerFactory(), nil
	case "unix":
		return unix.NewUnixListenerFactory(), nil
	default:
		return nil, common.NewConfigurationError("invalid transport %s", name)
	}
}

// ParsePorts parses a comma-separated list of NAME=UUID port definitions
func ParsePorts(raw string) (map[uuid.UUID]string, error) {
	ports := make(map[uuid.UUID]string)
	for _, def := range strings.Split(raw, ",") {
		def = strings.TrimSpace(def)
		if def == "" {
			continue
		}
		name, rawID, ok := strings.Cut(def, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, common.NewConfigurationError("invalid port format: %s (expected NAME=UUID)", def)
		}
		id, err := uuid.Parse(strings.TrimSpace(rawID))
		if err != nil {
			return nil, common.NewConfigurationError("invalid uuid for port %s: %v", name, err)
		}
		if _, dup := ports[id]; dup {
			return nil, common.NewConfigurationError("port uuid %s is defined twice", id)
		}
		ports[id] = strings.TrimSpace(name)
	}
	if len(ports) == 0 {
		return nil, common.NewConfigurationError("at least one port is required")
	}
	return ports, nil
}

// --------------------------------------------------------------------------
// Metrics
// --------------------------------------------------------------------------

// ServeMetrics serves the prometheus metrics on endpoint until ctx is done.
// An empty endpoint disables the handler.
func ServeMetrics(ctx context.Context, endpoint string) {
	if endpoint == "" {
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		common.WriteMetrics(w)
	})
	srv := &http.Server{Addr: endpoint, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		Logger.Infof("serving metrics on http://%s/metrics", endpoint)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("metrics endpoint failed: %v", err)
		}
	}()
}

// PrintConfig prints a configuration block the way all commands do
func PrintConfig(title string, config fmt.Stringer) {
	fmt.Println(title)
	fmt.Println(config.String())
}
