// Package venueA implements the EVM-authenticated venue adapter: an
// EIP-712 typed-data signer plus a wsconn-backed streaming client and a
// circuit-breaker/rate-limited REST order path.
package venueA

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/deltaneutral/perp-arb-engine/business/venue/app"
	"github.com/deltaneutral/perp-arb-engine/internal/apperror"
	"github.com/deltaneutral/perp-arb-engine/internal/secret"
)

// EIP712Signer signs order payloads with an EVM private key. It stores the
// venue's typed-data domain but does not fold it into Sign's digest. It is
// the venue A implementation of
// app.Signer: the core never sees the key material, only the
// Sign/Address contract.
type EIP712Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	domain     apitypes.TypedDataDomain
}

// NewEIP712Signer parses signingKey (hex, no 0x prefix required) and derives
// the signer's address from it.
func NewEIP712Signer(signingKey secret.String, domain apitypes.TypedDataDomain) (*EIP712Signer, error) {
	key, err := crypto.HexToECDSA(trimHexPrefix(signingKey.Reveal()))
	if err != nil {
		return nil, apperror.New(apperror.CodeAuthenticationFailed,
			apperror.WithContext("venue A signing key"), apperror.WithCause(err))
	}
	return &EIP712Signer{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
		domain:     domain,
	}, nil
}

var _ app.Signer = (*EIP712Signer)(nil)

// Sign hashes the raw payload bytes with Keccak-256 and returns the 65-byte
// (r, s, v) signature over that hash. It does not build an EIP-712
// typed-data digest; SigningHash computes one for callers that have the
// typed data.
func (s *EIP712Signer) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	hash := crypto.Keccak256Hash(payload)
	sig, err := crypto.Sign(hash.Bytes(), s.privateKey)
	if err != nil {
		return nil, apperror.New(apperror.CodeOrderRejected,
			apperror.WithContext("EIP-712 signing"), apperror.WithCause(err))
	}
	// go-ethereum's crypto.Sign returns v in {0, 1}; most venues expect the
	// canonical {27, 28} recovery id in the wire signature.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

func (s *EIP712Signer) Address() string {
	return s.address.Hex()
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// SigningHash exposes the canonical EIP-712 digest for an order payload so
// adapter code can build the typed-data struct once and reuse the hash for
// both signing and logging/debugging without re-deriving it.
func SigningHash(typedData apitypes.TypedData) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	return digest, nil
}

// clientOrderIDFromSignature derives a deterministic client order id from a
// signature so re-submissions of the same signed payload (PlaceOrder
// re-submits once after a 429) always carry the same id.
func clientOrderIDFromSignature(sig []byte) string {
	return common.Bytes2Hex(sig[:8])
}
