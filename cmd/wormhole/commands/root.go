package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"wormhole/internal/app"
	"wormhole/internal/domain"
)

var (
	cfg       = app.DefaultConfig()
	relayURLs []string
	verbose   bool
)

func Execute() error {
	root := &cobra.Command{
		Use:           "wormhole",
		Short:         "Send a file to another computer with a short code",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log := logrus.New()
			log.SetOutput(os.Stderr)
			log.SetLevel(logrus.WarnLevel)
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			}
			cfg.Logger = log
			if cmd.Flags().Changed("relay") {
				cfg.RelayURLs = relayURLs
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.RendezvousURL, "rendezvous", cfg.RendezvousURL, "rendezvous (mailbox) server URL")
	pf.StringSliceVar(&relayURLs, "relay", cfg.RelayURLs, "transit relay, e.g. tcp:host:4001 (repeatable)")
	pf.StringVar(&cfg.AppID, "appid", cfg.AppID, "application namespace on the rendezvous server")
	pf.StringVar(&cfg.ListenHost, "listen-host", cfg.ListenHost, "address to accept direct transit connections on")
	pf.StringSliceVar(&cfg.AdvertiseAddrs, "advertise", nil, "addresses to offer the peer instead of local interfaces")
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging on stderr")

	root.AddCommand(sendCmd(), receiveCmd())

	err := root.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", describe(err))
	}
	return err
}

// interruptible returns a context cancelled by SIGINT or SIGTERM.
func interruptible(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// describe prefixes err with its class so scripts can tell failures apart.
func describe(err error) string {
	if c := domain.Classify(err); c != domain.ClassUnknown {
		return fmt.Sprintf("%s: %v", c, err)
	}
	return err.Error()
}
