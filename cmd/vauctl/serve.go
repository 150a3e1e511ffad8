package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"code.vaulink.org/golang/internal/observability"
	"code.vaulink.org/golang/pkg/gateway"
)

type serveOptions struct {
	dir           string
	addr          string
	lifetime      time.Duration
	aliasInHeader bool
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the mock gateway on the lists written by pki generate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
	cmd.Flags().StringVar(&opts.dir, "dir", ".", "Directory holding the gateway lists & channel key")
	cmd.Flags().StringVar(&opts.addr, "addr", ":8080", "Listen address")
	cmd.Flags().DurationVar(&opts.lifetime, "alias-lifetime", 30*time.Minute, "Lifetime of issued aliases")
	cmd.Flags().BoolVar(&opts.aliasInHeader, "alias-header", false, "Send issued aliases in the Userpseudonym header")
	return cmd
}

func serve(ctx context.Context, opts *serveOptions) error {
	log := observability.GetObservability(ctx).Log()

	cfg, err := gateway.LoadDir(opts.dir, echoBackend())
	if nil != err {
		return err
	}
	cfg.PseudonymLifetime = opts.lifetime
	cfg.AliasInHeader = opts.aliasInHeader
	gw, err := gateway.New(cfg)
	if nil != err {
		return err
	}

	srv := &http.Server{
		Addr:              opts.addr,
		Handler:           gw,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("mock gateway listening", "addr", opts.addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err = <-errc:
		return wrapError(err, "failed ListenAndServe")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	log.Info("mock gateway stopped", "stats", gw.Stats())
	if nil != err && !errors.Is(err, http.ErrServerClosed) {
		return wrapError(err, "failed Shutdown")
	}
	return nil
}

// echoBackend answers inner requests with a JSON description of the request.
func echoBackend() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if nil != err {
			http.Error(w, "failed reading body", http.StatusBadRequest)
			return
		}
		observability.GetObservability(r.Context()).Log().Debug("inner request", slog.String("path", r.URL.Path))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
			"query":  r.URL.RawQuery,
			"body":   string(body),
		})
	})
}
