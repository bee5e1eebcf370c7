package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"wcsign/internal/domain"
)

func decryptCmd() *cobra.Command {
	var (
		topic   string
		message string
		kind    string
	)
	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt a push-delivered envelope with keys from the keychain",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := domain.Topic(topic)
			switch kind {
			case "request":
				req, err := wire.Decryption.DecryptRequest(cmd.Context(), t, message)
				if err != nil {
					return err
				}
				md, _, err := wire.Decryption.Metadata(cmd.Context(), t)
				if err != nil {
					return err
				}
				return printJSON(struct {
					Request domain.SessionRequest `json:"request"`
					Peer    domain.AppMetadata    `json:"peer"`
				}{req, md})
			case "proposal":
				prop, err := wire.Decryption.DecryptProposal(cmd.Context(), t, message)
				if err != nil {
					return err
				}
				return printJSON(prop)
			default:
				return fmt.Errorf("--kind must be request or proposal, got %q", kind)
			}
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "", "topic the envelope was published on")
	cmd.Flags().StringVar(&message, "message", "", "base64 envelope")
	cmd.Flags().StringVar(&kind, "kind", "request", "request or proposal")
	_ = cmd.MarkFlagRequired("topic")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}
