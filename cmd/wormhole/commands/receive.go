package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"wormhole/internal/app"
	"wormhole/internal/code"
	"wormhole/internal/domain"
)

// receive <code>: redeem a code and save the offered file.
func receiveCmd() *cobra.Command {
	var (
		yes       bool
		outputDir string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:     "receive <code>",
		Aliases: []string{"recv"},
		Short:   "Receive a file using the code the sender read to you",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, "-")
			wc, err := code.Parse(text)
			if err != nil {
				return err
			}
			log := cfg.Logger
			for _, word := range wc.Words {
				if !code.Known(word) {
					log.Warnf("%q is not in the word list; check the code for typos", word)
				}
			}

			w, err := app.NewWire(cfg, outputDir, overwrite)
			if err != nil {
				return err
			}
			a := app.New(w)

			ctx, stop := interruptible(context.Background())
			defer stop()

			sess, err := a.Sessions.Receive(ctx, text, domain.ReceiveOptions{AutoAccept: yes})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			in := bufio.NewReader(cmd.InOrStdin())
			last, err := follow(out, sess, func(ev domain.Event) error {
				if ev.Kind != domain.EventManifestOffered {
					return nil
				}
				fmt.Fprintf(out, "Receiving %s (%s)\n", ev.Manifest.Name, humanize.Bytes(uint64(ev.Manifest.Size)))
				if yes {
					return nil
				}
				fmt.Fprint(out, "Accept? [y/N] ")
				answer, _ := in.ReadString('\n')
				answer = strings.ToLower(strings.TrimSpace(answer))
				return sess.Respond(answer == "y" || answer == "yes")
			})
			if errors.Is(err, domain.ErrAborted) {
				fmt.Fprintln(out, "Transfer cancelled")
				return nil
			}
			if err != nil {
				return err
			}
			path, err := a.Save(last)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Received %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "accept the offer without asking")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", ".", "directory to save into")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing file of the same name")
	return cmd
}
