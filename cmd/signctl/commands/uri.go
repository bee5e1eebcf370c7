package commands

import (
	"encoding/hex"
	"time"

	"github.com/spf13/cobra"

	"wcsign/internal/services/pairing"
)

func uriCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uri",
		Short: "Work with wc: pairing URIs",
	}
	cmd.AddCommand(uriInspectCmd())
	return cmd
}

func uriInspectCmd() *cobra.Command {
	var showKey bool
	cmd := &cobra.Command{
		Use:   "inspect <uri>",
		Short: "Decode a pairing URI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := pairing.ParseURI(args[0])
			if err != nil {
				return err
			}
			out := struct {
				Topic   string   `json:"topic"`
				Version string   `json:"version"`
				Relay   string   `json:"relay"`
				Expiry  string   `json:"expiry,omitempty"`
				Expired bool     `json:"expired"`
				Methods []string `json:"methods,omitempty"`
				SymKey  string   `json:"symKey,omitempty"`
			}{
				Topic:   u.Topic.String(),
				Version: u.Version,
				Relay:   u.Relay.Protocol,
				Methods: u.Methods,
			}
			if !u.Expiry.IsZero() {
				out.Expiry = u.Expiry.UTC().Format(time.RFC3339)
				out.Expired = !time.Now().Before(u.Expiry)
			}
			if showKey {
				out.SymKey = hex.EncodeToString(u.SymKey[:])
			}
			return printJSON(out)
		},
	}
	cmd.Flags().BoolVar(&showKey, "show-key", false, "include the symmetric key in the output")
	return cmd
}
