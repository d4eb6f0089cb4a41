// Command dutygen generates the request union, client proxy and server of a
// service interface. It is meant to run from go:generate:
//
//	//go:generate go run duty/cmd/dutygen --type LogicService
package main

import (
	"os"

	"github.com/spf13/cobra"

	"duty/gen"
	"duty/logging"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		logging.Default().Error().Err(err).Msg("dutygen failed")
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var typeName, output string
	cmd := &cobra.Command{
		Use:   "dutygen --type Name [--output file] [dir]",
		Short: "Generates the RPC glue for a service interface",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return gen.GenerateDir(dir, typeName, output)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().StringVarP(&typeName, "type", "t", "", "name of the service interface")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file name, default <type>_duty.go in snake case")
	cmd.MarkFlagRequired("type")
	return cmd
}
