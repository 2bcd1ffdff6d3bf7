// Package venueB implements the Starknet-authenticated venue adapter.
//
// No Starknet client or typed-data signing library is present anywhere in
// the reference corpus this engine was grounded on, and inventing one would
// mean fabricating a dependency that cannot actually be fetched. HMACSigner
// below is a deliberately narrow stand-in: it satisfies app.Signer with a
// symmetric scheme suitable for integration tests and local development
// against a mock venue B, and is documented as the one place production
// deployment must swap in a real Starknet typed-data signer before going
// live with funds.
package venueB

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"

	"github.com/deltaneutral/perp-arb-engine/business/venue/app"
	"github.com/deltaneutral/perp-arb-engine/internal/secret"
)

// HMACSigner is a placeholder app.Signer for venue B. It must not be used
// against a production venue: a real deployment replaces this with a
// Starknet-domain typed-data signer behind the same interface.
type HMACSigner struct {
	key     secret.String
	address string
}

// NewHMACSigner constructs the placeholder signer from the account's
// private key material and its Starknet account address.
func NewHMACSigner(privateKey secret.String, accountAddress string) *HMACSigner {
	return &HMACSigner{key: privateKey, address: accountAddress}
}

var _ app.Signer = (*HMACSigner)(nil)

func (s *HMACSigner) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, []byte(s.key.Reveal()))
	mac.Write(payload)
	return mac.Sum(nil), nil
}

func (s *HMACSigner) Address() string {
	return s.address
}
