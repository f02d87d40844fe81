package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/gobeyondidentity/podnotes/internal/api"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the notes HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen == "" {
				listen = a.cfg.API.Listen
			}
			srv := api.NewServer(a.session(),
				api.WithAllowedOrigins(a.cfg.API.AllowedOrigins...),
				api.WithLogger(a.logger),
			)

			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", listen, err)
			}
			return serve(cmd.Context(), a, ln, srv.Router())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default: api.listen)")
	return cmd
}

// serve runs handler on ln until ctx is canceled, then shuts down.
func serve(ctx context.Context, a *app, ln net.Listener, handler http.Handler) error {
	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()
	a.logger.Info("notes API listening", "addr", ln.Addr().String(), "pod", a.cfg.Pod.URL)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
