package interfaces

import (
	"context"

	domaintypes "wcsign/internal/domain/types"
)

// ContractCaller performs the EIP-1271 isValidSignature call for a smart
// contract account on chain.
type ContractCaller interface {
	IsValidSignature(
		ctx context.Context,
		chain domaintypes.Blockchain,
		contract string,
		hash [32]byte,
		signature []byte,
	) (bool, error)
}
