package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/sha3"

	"wcsign/internal/domain"
	"wcsign/internal/metrics"
	"wcsign/internal/protocol/cacao"
)

// Verifier checks CACAO signatures.
type Verifier struct {
	caller domain.ContractCaller
	log    zerolog.Logger
}

// NewVerifier returns a verifier. caller may be nil, in which case eip1271
// signatures never verify.
func NewVerifier(caller domain.ContractCaller, log zerolog.Logger) *Verifier {
	return &Verifier{caller: caller, log: log.With().Str("component", "auth").Logger()}
}

// Verify rebuilds the signed message from c and checks its signature
// against the account named by c.P.Iss.
func (v *Verifier) Verify(ctx context.Context, c domain.Cacao) (domain.Account, error) {
	account, err := domain.ParseDIDPKH(c.P.Iss)
	if err != nil {
		return domain.Account{}, &domain.VerificationFailedError{Chain: "", Reason: fmt.Sprintf("bad issuer: %v", err)}
	}
	fail := func(reason string) error {
		return &domain.VerificationFailedError{Chain: account.Chain.String(), Reason: reason}
	}

	sig, err := decodeHex(c.S.S)
	if err != nil {
		return domain.Account{}, fail("signature is not hex")
	}
	hash := personalHash(cacao.FormatMessage(c.P, account))

	var ok bool
	switch c.S.T {
	case domain.CacaoEIP191:
		ok, err = verifyEIP191(hash, sig, account.Address)
	case domain.CacaoEIP1271:
		if v.caller == nil {
			return domain.Account{}, fail("no contract caller configured")
		}
		ok, err = v.caller.IsValidSignature(ctx, account.Chain, account.Address, hash, sig)
	default:
		return domain.Account{}, fail("unsupported signature type " + string(c.S.T))
	}
	metrics.RecordVerification(string(c.S.T), ok && err == nil)
	if err != nil {
		return domain.Account{}, fail(err.Error())
	}
	if !ok {
		return domain.Account{}, fail("signature does not match account")
	}
	return account, nil
}

// VerifyAll checks each CACAO independently. Accounts are unioned in input
// order; failures are reported per chain.
func (v *Verifier) VerifyAll(ctx context.Context, cacaos []domain.Cacao) ([]domain.Account, []*domain.VerificationFailedError) {
	var (
		accounts []domain.Account
		failed   []*domain.VerificationFailedError
		seen     = map[string]bool{}
	)
	for _, c := range cacaos {
		a, err := v.Verify(ctx, c)
		if err != nil {
			var vf *domain.VerificationFailedError
			if !errors.As(err, &vf) {
				vf = &domain.VerificationFailedError{Reason: err.Error()}
			}
			v.log.Warn().Str("chain", vf.Chain).Str("reason", vf.Reason).Msg("cacao rejected")
			failed = append(failed, vf)
			continue
		}
		key := strings.ToLower(a.String())
		if seen[key] {
			continue
		}
		seen[key] = true
		accounts = append(accounts, a)
	}
	return accounts, failed
}

// personalHash is the EIP-191 version 0x45 digest of msg.
func personalHash(msg string) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte("\x19Ethereum Signed Message:\n" + strconv.Itoa(len(msg)) + msg))
	var out [32]byte
	h.Sum(out[:0])
	return out
}

// verifyEIP191 recovers the signer of an r||s||v signature and compares
// it with address.
func verifyEIP191(hash [32]byte, sig []byte, address string) (bool, error) {
	if len(sig) != 65 {
		return false, fmt.Errorf("signature length %d", len(sig))
	}
	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return false, fmt.Errorf("invalid recovery id %d", sig[64])
	}
	compact := make([]byte, 65)
	compact[0] = 27 + v
	copy(compact[1:], sig[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, hash[:])
	if err != nil {
		return false, nil
	}
	if !common.IsHexAddress(address) {
		return false, fmt.Errorf("account %q is not an address", address)
	}
	return recoveredAddress(pub.SerializeUncompressed()) == common.HexToAddress(address), nil
}

func recoveredAddress(uncompressed []byte) common.Address {
	h := sha3.NewLegacyKeccak256()
	h.Write(uncompressed[1:])
	return common.BytesToAddress(h.Sum(nil)[12:])
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
}
