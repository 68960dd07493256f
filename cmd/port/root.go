package port

import (
	"context"
	"github.com/ValentinKolb/s2sgate/cmd/util"
	"github.com/ValentinKolb/s2sgate/lib/flow"
	"github.com/ValentinKolb/s2sgate/lib/flow/memsession"
	"github.com/ValentinKolb/s2sgate/lib/flow/scheduler"
	"github.com/ValentinKolb/s2sgate/s2s/common"
	"github.com/ValentinKolb/s2sgate/s2s/port"
	"github.com/ValentinKolb/s2sgate/s2s/transport"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	portConfig *common.PortConfig
	streams    transport.IStreamFactory

	// PortCommands represents the port command group
	PortCommands = &cobra.Command{
		Use:               "port",
		Short:             "Move flow files to or from a port of a remote peer",
		PersistentPreRunE: setupPort,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	util.SetupPortFlags(PortCommands)

	PortCommands.AddCommand(sendCmd)
	PortCommands.AddCommand(receiveCmd)
	PortCommands.AddCommand(perfTestCmd)
}

// setupPort reads the port configuration and creates the stream factory
func setupPort(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	direction := common.Send
	if cmd.Name() == receiveCmd.Name() {
		direction = common.Receive
	}

	var err error
	if portConfig, err = util.GetPortConfig(direction); err != nil {
		return err
	}
	if err := common.InitLoggers(portConfig.LogLevel); err != nil {
		return err
	}
	streams, err = util.GetStreamFactory(portConfig.Transport)
	return err
}

// runAdapter schedules a port adapter against repo until until reports
// completion, ctx is done or a configuration error occurs
func runAdapter(ctx context.Context, repo *memsession.Repository, until func() bool) error {
	adapter := port.NewAdapter(*portConfig, streams)
	adapter.Initialize()

	pctx := flow.NewStaticContext(port.EndpointProperties(portConfig.Endpoint), adapter.Properties())
	s := scheduler.New(adapter, pctx, repo, scheduler.Config{
		Workers:   viper.GetInt("workers"),
		Retryable: func(err error) bool { return !common.IsFatal(err) },
		HasWork:   func() bool { return repo.Queued() > 0 },
		Until:     until,
	})

	util.ServeMetrics(ctx, viper.GetString("metrics-endpoint"))

	err := s.Run(ctx)
	util.Logger.Infof("%d triggers, %d failed", s.Triggers(), s.Failures())
	return err
}
