package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"wcsign/internal/app"
	"wcsign/internal/config"
	"wcsign/internal/logging"
	"wcsign/internal/relay"
	"wcsign/internal/services/identity"
)

// annotationStrongPassphrase marks commands that create a persistent
// keychain and so enforce the passphrase policy before opening it.
const annotationStrongPassphrase = "strong-passphrase"

var (
	configPath string
	passphrase string
	wire       *app.Wire
)

func Execute() error {
	return newRoot().Execute()
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "signctl",
		Short:        "Developer tools for wcsign clients",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Read(configPath)
			if err != nil {
				return err
			}
			if passphrase != "" {
				cfg.Keychain.Passphrase = passphrase
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cmd.Annotations[annotationStrongPassphrase] != "" && cfg.Storage.Backend != config.BackendMemory {
				if err := identity.CheckPassphrase(cfg.Keychain.Passphrase); err != nil {
					return err
				}
			}
			log := logging.New(logging.Options{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, App: "signctl"})
			wire, err = openWire(cmd.Context(), cfg, log)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if wire == nil {
				return nil
			}
			return wire.Close()
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "keychain passphrase (overrides config)")

	root.AddCommand(initCmd(), didCmd(), uriCmd(), cacaoCmd(), decryptCmd())
	return root
}

func openWire(ctx context.Context, cfg config.Config, log zerolog.Logger) (*app.Wire, error) {
	return app.NewWire(ctx, cfg, app.Overrides{Relay: relay.NewHub().Client(), Log: &log})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
