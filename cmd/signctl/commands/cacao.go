package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wcsign/internal/domain"
	"wcsign/internal/protocol/cacao"
)

func cacaoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cacao",
		Short: "Inspect and verify CACAO sign-in objects",
	}
	cmd.AddCommand(cacaoMessageCmd(), cacaoVerifyCmd())
	return cmd
}

// readCacao loads a JSON CACAO and resolves its issuer account.
func readCacao(path string) (domain.Cacao, domain.Account, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return domain.Cacao{}, domain.Account{}, err
	}
	var c domain.Cacao
	if err := json.Unmarshal(b, &c); err != nil {
		return domain.Cacao{}, domain.Account{}, fmt.Errorf("parse %s: %w", path, err)
	}
	acct, err := domain.ParseDIDPKH(c.P.Iss)
	if err != nil {
		return domain.Cacao{}, domain.Account{}, err
	}
	return c, acct, nil
}

func cacaoMessageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "message <file>",
		Short: "Print the message a CACAO signature covers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, acct, err := readCacao(args[0])
			if err != nil {
				return err
			}
			fmt.Println(cacao.FormatMessage(c.P, acct))
			return nil
		},
	}
}

func cacaoVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Verify a CACAO signature (EIP-191, or EIP-1271 with auth.eth_rpc_url set)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := readCacao(args[0])
			if err != nil {
				return err
			}
			acct, err := wire.Verifier.Verify(cmd.Context(), c)
			if err != nil {
				return err
			}
			fmt.Printf("valid: %s\n", acct)
			return nil
		},
	}
}
