package sig

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/binary"
	"fmt"
)

// decodeWebAuthnBundle parses the wire form of a 0x02-prefixed
// authorization body:
//
//	uint16 authenticatorDataLen | authenticatorData
//	uint16 clientDataJSONLen    | clientDataJSON
//	uint16 signatureLen         | signature (ASN.1 DER)
//	uint8  pubKeyLen            | pubKey (uncompressed P256 point)
func decodeWebAuthnBundle(b []byte) (*WebAuthnBundle, error) {
	authData, rest, err := readLenPrefixed16(b)
	if err != nil {
		return nil, fmt.Errorf("authenticatorData: %w", err)
	}

	clientData, rest, err := readLenPrefixed16(rest)
	if err != nil {
		return nil, fmt.Errorf("clientDataJSON: %w", err)
	}

	signature, rest, err := readLenPrefixed16(rest)
	if err != nil {
		return nil, fmt.Errorf("signature: %w", err)
	}

	if len(rest) < 1 {
		return nil, fmt.Errorf("missing public key length")
	}
	pubLen := int(rest[0])
	rest = rest[1:]
	if len(rest) != pubLen {
		return nil, fmt.Errorf("public key length mismatch")
	}

	x, y := elliptic.Unmarshal(elliptic.P256(), rest)
	if x == nil {
		return nil, fmt.Errorf("invalid P256 public key encoding")
	}

	return &WebAuthnBundle{
		AuthenticatorData: authData,
		ClientDataJSON:    clientData,
		Signature:         signature,
		PublicKey:         &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y},
	}, nil
}

func readLenPrefixed16(b []byte) (value, rest []byte, err error) {
	if len(b) < 2 {
		return nil, nil, fmt.Errorf("truncated length prefix")
	}
	n := int(binary.BigEndian.Uint16(b[0:2]))
	b = b[2:]
	if len(b) < n {
		return nil, nil, fmt.Errorf("truncated field: want %d bytes, have %d", n, len(b))
	}
	return b[:n], b[n:], nil
}
