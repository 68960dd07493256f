package cmd

import (
	"fmt"
	"github.com/ValentinKolb/s2sgate/cmd/port"
	"github.com/ValentinKolb/s2sgate/cmd/serve"
	"github.com/ValentinKolb/s2sgate/s2s/protocol"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "s2sgate",
		Short: "Site-to-Site flow file gateway",
		Long: fmt.Sprintf(`s2sgate (v%s)

Moves flow files between a local pipeline and ports of a remote
Site-to-Site peer over pooled, checksummed transactions.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of s2sgate",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("s2sgate v%s (protocol versions %v)\n", Version, protocol.SupportedVersions)
		},
	}
)

func init() {
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(port.PortCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
