package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"wcsign/internal/domain"
)

func didCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "did",
		Short: "Print the relay identity as a did:key",
		RunE: func(cmd *cobra.Command, args []string) error {
			did, err := wire.Identity.DID(cmd.Context())
			if errors.Is(err, domain.ErrKeyNotFound) {
				return fmt.Errorf("no identity yet, run signctl init")
			}
			if err != nil {
				return err
			}
			fmt.Println(did)
			return nil
		},
	}
}
