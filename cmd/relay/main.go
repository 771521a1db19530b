package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"wormhole/internal/mailbox"
	"wormhole/internal/transitrelay"
)

type options struct {
	mailboxAddr string
	transitAddr string
	motd        string
	pairTimeout time.Duration
	verbose     bool
}

func main() {
	var opts options
	root := &cobra.Command{
		Use:          "wormhole-relay",
		Short:        "Run a rendezvous (mailbox) server and a transit relay",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	f := root.Flags()
	f.StringVar(&opts.mailboxAddr, "mailbox-listen", ":4000", "address for the websocket mailbox server")
	f.StringVar(&opts.transitAddr, "transit-listen", ":4001", "address for the TCP transit relay; empty disables it")
	f.StringVar(&opts.motd, "motd", "", "message of the day sent in the welcome")
	f.DurationVar(&opts.pairTimeout, "pair-timeout", time.Minute, "how long a relay connection waits for its partner")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opts options) error {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if opts.verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mb := mailbox.New(log.WithField("component", "mailbox"), opts.motd)
	var relay *transitrelay.Server
	if opts.transitAddr != "" {
		l, err := net.Listen("tcp", opts.transitAddr)
		if err != nil {
			return err
		}
		defer l.Close()
		relay = transitrelay.New(log.WithField("component", "transit"), opts.pairTimeout)
		go func() {
			if err := relay.Serve(l); err != nil && !errors.Is(err, net.ErrClosed) {
				log.WithError(err).Error("transit relay stopped")
			}
		}()
		log.Infof("transit relay listening on %s", l.Addr())
	}

	mux := http.NewServeMux()
	mux.Handle("/v1", mb)
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		nameplates, mailboxes := mb.Stats()
		st := map[string]int{"nameplates": nameplates, "mailboxes": mailboxes}
		if relay != nil {
			st["relayed"] = relay.Active()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	})

	srv := &http.Server{
		Addr:              opts.mailboxAddr,
		Handler:           accessLog(log, mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infof("mailbox server listening on %s", opts.mailboxAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// accessLog records method, path, remote and duration for each request.
// Websocket requests are logged when the connection ends.
func accessLog(log logrus.FieldLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"remote":   r.RemoteAddr,
			"duration": time.Since(start).Round(time.Millisecond),
		}).Debug("request")
	})
}
