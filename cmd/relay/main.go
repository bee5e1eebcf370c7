package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"wcsign/internal/logging"
	"wcsign/internal/relay"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "relay",
		Short:        "Development relay for wcsign clients",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	return root
}

func serveCmd() *cobra.Command {
	var (
		addr        string
		requireAuth bool
		audience    string
		level       string
		pretty      bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the relay over websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New(logging.Options{Level: level, Pretty: pretty, App: "relay"})
			srv := relay.NewServer(relay.NewHub(), relay.ServerOptions{
				RequireAuth: requireAuth,
				Audience:    audience,
				Log:         log,
			})
			httpSrv := &http.Server{
				Addr:              addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			errc := make(chan error, 1)
			go func() { errc <- httpSrv.ListenAndServe() }()
			log.Info().Str("addr", addr).Bool("require_auth", requireAuth).Msg("relay listening")

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}
			log.Info().Msg("relay shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().BoolVar(&requireAuth, "require-auth", false, "reject clients without an auth JWT")
	cmd.Flags().StringVar(&audience, "audience", "", "expected JWT audience (empty accepts any)")
	cmd.Flags().StringVar(&level, "log-level", "info", "log level")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "human-readable logs")
	return cmd
}
