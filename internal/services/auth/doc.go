// Package auth implements the authenticate half of the sign protocol:
// building the CAIP-122 payload a wallet will sign, packaging signatures
// as CACAOs and verifying them.
//
// EOA signatures (eip191) are recovered locally with secp256k1. Contract
// account signatures (eip1271) are delegated to a ContractCaller, which is
// the only suspension point in this package.
package auth
