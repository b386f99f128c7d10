package sig

import (
	"crypto/ecdsa"

	"github.com/warp-contracts/tempo-watchtower/src/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"testing"
)

func TestVerifierTestSuite(t *testing.T) {
	suite.Run(t, new(VerifierTestSuite))
}

type VerifierTestSuite struct {
	suite.Suite

	key      *ecdsa.PrivateKey
	sender   common.Address
	groupID  []byte
	verifier *Verifier
}

func (s *VerifierTestSuite) SetupSuite() {
	var err error
	s.key, err = crypto.GenerateKey()
	require.Nil(s.T(), err)
	s.sender = crypto.PubkeyToAddress(s.key.PublicKey)
	s.groupID = crypto.Keccak256([]byte("group"))[:16]
	s.verifier = New(nil)
}

func (s *VerifierTestSuite) signDigest() []byte {
	digest := crypto.Keccak256(s.groupID)
	signature, err := crypto.Sign(digest, s.key)
	require.Nil(s.T(), err)
	return signature
}

func (s *VerifierTestSuite) TestLegacySignature() {
	err := s.verifier.VerifyGroupCancel(s.signDigest(), s.groupID, s.sender)
	require.Nil(s.T(), err)
}

func (s *VerifierTestSuite) TestLegacySignatureWith27Offset() {
	signature := s.signDigest()
	signature[64] += 27
	err := s.verifier.VerifyGroupCancel(signature, s.groupID, s.sender)
	require.Nil(s.T(), err)
}

func (s *VerifierTestSuite) TestPrefixedSecp256k1() {
	signature := append([]byte{0x01}, s.signDigest()...)
	err := s.verifier.VerifyGroupCancel(signature, s.groupID, s.sender)
	require.Nil(s.T(), err)
}

func (s *VerifierTestSuite) TestRejectsWrongSender() {
	other, err := crypto.GenerateKey()
	require.Nil(s.T(), err)

	err = s.verifier.VerifyGroupCancel(s.signDigest(), s.groupID, crypto.PubkeyToAddress(other.PublicKey))
	require.ErrorIs(s.T(), err, model.ErrUnauthorized)
}

func (s *VerifierTestSuite) TestRejectsWrongGroup() {
	otherGroup := crypto.Keccak256([]byte("other"))[:16]
	err := s.verifier.VerifyGroupCancel(s.signDigest(), otherGroup, s.sender)
	require.ErrorIs(s.T(), err, model.ErrUnauthorized)
}

func (s *VerifierTestSuite) TestRejectsGarbage() {
	err := s.verifier.VerifyGroupCancel([]byte{0x55, 0x66}, s.groupID, s.sender)
	require.ErrorIs(s.T(), err, model.ErrUnauthorized)
}

func (s *VerifierTestSuite) TestRejectsTruncatedPrefixed() {
	err := s.verifier.VerifyGroupCancel([]byte{0x01, 0x02, 0x03}, s.groupID, s.sender)
	require.ErrorIs(s.T(), err, model.ErrUnauthorized)
}

func (s *VerifierTestSuite) TestWebAuthnFailsClosedWithoutVerifier() {
	err := s.verifier.VerifyGroupCancel(append([]byte{0x02}, make([]byte, 32)...), s.groupID, s.sender)
	require.ErrorIs(s.T(), err, model.ErrUnauthorized)
}

type acceptAllWebAuthn struct{}

func (acceptAllWebAuthn) Verify(bundle *WebAuthnBundle, challenge []byte) (bool, error) {
	return true, nil
}

func (s *VerifierTestSuite) TestWebAuthnRejectsMalformedBundle() {
	verifier := New(acceptAllWebAuthn{})
	err := verifier.VerifyGroupCancel(append([]byte{0x02}, 0xff), s.groupID, s.sender)
	require.ErrorIs(s.T(), err, model.ErrUnauthorized)
}
