package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "init",
		Short:       "Generate the relay identity and store it in the keychain",
		Annotations: map[string]string{annotationStrongPassphrase: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			did, err := wire.Identity.Generate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Identity created.\nDID: %s\n", did)
			return nil
		},
	}
}
