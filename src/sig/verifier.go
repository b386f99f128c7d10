// Package sig verifies the signatures that authorize a local group
// cancellation.
package sig

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"fmt"

	"github.com/warp-contracts/tempo-watchtower/src/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	prefixSecp256k1 = 0x01
	prefixWebAuthn  = 0x02
)

// WebAuthnBundle is the authenticatorData + clientDataJSON + signature
// triple a 0x02-prefixed authorization carries. Verification of the
// P256 assertion itself is delegated to a caller-supplied Verifier,
// since producing one requires an authenticator/relying-party stack
// outside this package's scope.
type WebAuthnBundle struct {
	AuthenticatorData []byte
	ClientDataJSON    []byte
	Signature         []byte // ASN.1 DER-encoded (r, s) from the authenticator's P256 key
	PublicKey         *ecdsa.PublicKey
}

// WebAuthnVerifier checks a WebAuthn assertion against the expected
// challenge (the digest being authorized) and reports pass/fail. The
// key-to-sender check is done separately by the Verifier.
type WebAuthnVerifier interface {
	Verify(bundle *WebAuthnBundle, challenge []byte) (ok bool, err error)
}

// Verifier checks cancel-authorization signatures against an expected
// sender address.
type Verifier struct {
	webAuthn WebAuthnVerifier
}

// New builds a Verifier. webAuthn may be nil if 0x02-prefixed
// authorizations are never expected to be presented; such a bundle
// then fails closed with ErrUnauthorized.
func New(webAuthn WebAuthnVerifier) *Verifier {
	return &Verifier{webAuthn: webAuthn}
}

// VerifyGroupCancel checks that sig authorizes a cancel over
// groupID16 on behalf of sender. digest is keccak256(group_id_16).
//
// Three wire forms:
//   - exactly 65 bytes: legacy secp256k1 r||s||v, no type prefix.
//   - first byte 0x01: secp256k1 r||s||v, explicit type prefix.
//   - first byte 0x02: P256/WebAuthn bundle, RLP-free and delegated.
func (self *Verifier) VerifyGroupCancel(sig []byte, groupID16 []byte, sender common.Address) error {
	digest := crypto.Keccak256(groupID16)

	switch {
	case len(sig) == 65:
		return self.verifySecp256k1(sig, digest, sender)
	case len(sig) >= 1 && sig[0] == prefixSecp256k1:
		return self.verifySecp256k1(sig[1:], digest, sender)
	case len(sig) >= 1 && sig[0] == prefixWebAuthn:
		return self.verifyWebAuthn(sig[1:], digest, sender)
	default:
		return fmt.Errorf("%w: unrecognized signature encoding", model.ErrUnauthorized)
	}
}

func (self *Verifier) verifySecp256k1(sig []byte, digest []byte, sender common.Address) error {
	if len(sig) != 65 {
		return fmt.Errorf("%w: secp256k1 signature must be 65 bytes", model.ErrUnauthorized)
	}

	sigCopy := make([]byte, 65)
	copy(sigCopy, sig)
	if sigCopy[64] >= 27 {
		sigCopy[64] -= 27
	}

	pub, err := crypto.SigToPub(digest, sigCopy)
	if err != nil {
		return fmt.Errorf("%w: %s", model.ErrUnauthorized, err)
	}

	if crypto.PubkeyToAddress(*pub) != sender {
		return fmt.Errorf("%w: signature does not match sender", model.ErrUnauthorized)
	}
	return nil
}

func (self *Verifier) verifyWebAuthn(body []byte, digest []byte, sender common.Address) error {
	if self.webAuthn == nil {
		return fmt.Errorf("%w: webauthn authorization not supported", model.ErrUnauthorized)
	}

	bundle, err := decodeWebAuthnBundle(body)
	if err != nil {
		return fmt.Errorf("%w: %s", model.ErrUnauthorized, err)
	}

	ok, err := self.webAuthn.Verify(bundle, digest)
	if err != nil {
		return fmt.Errorf("%w: %s", model.ErrUnauthorized, err)
	}
	if !ok {
		return fmt.Errorf("%w: webauthn assertion failed", model.ErrUnauthorized)
	}

	if fingerprintMatches(bundle.PublicKey, sender) {
		return nil
	}
	return fmt.Errorf("%w: webauthn key does not map to sender", model.ErrUnauthorized)
}

// fingerprintMatches reports whether the P256 public key's
// sha256-derived address binding matches sender. Tempo binds a
// WebAuthn credential to an address out-of-band at registration time;
// here we only confirm that the last 20 bytes of sha256 over the
// bundle's declared key equal the address the caller expects.
func fingerprintMatches(pub *ecdsa.PublicKey, sender common.Address) bool {
	if pub == nil {
		return false
	}
	raw := elliptic.Marshal(pub.Curve, pub.X, pub.Y)
	sum := sha256.Sum256(raw)
	var addr common.Address
	copy(addr[:], sum[len(sum)-common.AddressLength:])
	return addr == sender
}
