package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"wormhole/internal/app"
	"wormhole/internal/code"
	"wormhole/internal/domain"
)

// send <file>: offer a file and wait for the receiver.
func sendCmd() *cobra.Command {
	var (
		opts    domain.SendOptions
		useQUIC bool
	)
	cmd := &cobra.Command{
		Use:   "send <file>",
		Short: "Offer a file and print the code the receiver needs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if useQUIC {
				cfg.EnableQUIC()
			}
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			w, err := app.NewWire(cfg, "", false)
			if err != nil {
				return err
			}
			a := app.New(w)

			ctx, stop := interruptible(context.Background())
			defer stop()

			name := filepath.Base(path)
			sess, err := a.Sessions.Send(ctx, data, int64(len(data)), name, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Sending %s (%s)\n", name, humanize.Bytes(uint64(len(data))))
			_, err = follow(out, sess, func(ev domain.Event) error {
				if ev.Kind == domain.EventCodeReady {
					fmt.Fprintf(out, "Wormhole code is: %s\n", ev.Code)
					fmt.Fprintf(out, "On the other computer, run: wormhole receive %s\n", ev.Code)
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "File sent")
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Code, "code", "", "use this code instead of allocating one")
	cmd.Flags().IntVar(&cfg.WordCount, "words", cfg.WordCount,
		fmt.Sprintf("words in a generated code (%d to %d)", code.MinWords, code.MaxWords))
	cmd.Flags().BoolVar(&opts.Compress, "compress", false, "zstd-compress chunks")
	cmd.Flags().BoolVar(&useQUIC, "quic", false, "also offer direct QUIC transit")
	return cmd
}
