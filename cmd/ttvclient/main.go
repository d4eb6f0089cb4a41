// Command ttvclient calls TtvCalc workers. A worker can be reached over the
// network, started as a local process, or started on a remote host over ssh;
// dispatch spreads one range over every configured backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"duty/config"
	"duty/examples/ttvcalc"
	"duty/logging"
)

var log = logging.NewDomain("ttvclient")

type options struct {
	configFile string
	from, to   uint64
	factor     float64
}

func newCommand() *cobra.Command {
	cfg := config.New()
	opts := &options{}
	root := &cobra.Command{
		Use:   "ttvclient",
		Short: "Calls TtvCalc workers",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.configFile != "" {
				if err := cfg.Load(opts.configFile, cmd.Flags()); err != nil {
					return err
				}
			} else if err := cfg.Validate(); err != nil {
				return err
			}
			return cfg.ApplyLogging()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	fs := root.PersistentFlags()
	fs.StringVarP(&opts.configFile, "config", "c", "", "YAML config file")
	fs.Uint64Var(&opts.from, "from", 0, "first value of the range")
	fs.Uint64Var(&opts.to, "to", 42, "end of the range, exclusive")
	fs.Float64Var(&opts.factor, "factor", 0, "set the worker factor before calculating")
	if err := cfg.BindFlags(fs); err != nil {
		log.Fatal().Err(err).Msg("invalid environment")
	}

	root.AddCommand(
		netCommand(cfg, opts),
		localCommand(cfg, opts),
		sshCommand(cfg, opts),
		dispatchCommand(cfg, opts),
	)
	return root
}

// calculate runs one range on c and prints the result.
func calculate(ctx context.Context, fs *pflag.FlagSet, c *ttvcalc.TtvCalcClient, opts *options) error {
	defer c.Close()
	if fs.Changed("factor") {
		if err := c.SetFactor(opts.factor); err != nil {
			return err
		}
	}
	values, err := c.TtvCalc(ctx, opts.from, opts.to)
	if err != nil {
		return err
	}
	fmt.Println(values)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		logging.Err(err).Msg("ttvclient failed")
		os.Exit(1)
	}
}
