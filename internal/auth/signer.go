package auth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrBadSignature = errors.New("bad signature")

// Signer signs login challenges with a wallet key
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a signer from a hex-encoded private key
func NewSigner(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")

	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewSignerFromKey(privateKey), nil
}

// NewSignerFromKey wraps an already parsed key
func NewSignerFromKey(key *ecdsa.PrivateKey) *Signer {
	return &Signer{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}
}

// Address returns the signer's address
func (s *Signer) Address() common.Address {
	return s.address
}

// SignMessage signs a message with the EIP-191 personal_sign prefix
func (s *Signer) SignMessage(message []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), s.privateKey)
	if err != nil {
		return nil, err
	}

	// wallets expect v in {27, 28}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// SignMessageHex signs a message and returns a 0x-prefixed signature
func (s *Signer) SignMessageHex(message []byte) (string, error) {
	sig, err := s.SignMessage(message)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

// RecoverAddress returns the account that produced a personal_sign signature
func RecoverAddress(message []byte, sigHex string) (common.Address, error) {
	sigHex = strings.TrimSpace(sigHex)
	if !strings.HasPrefix(sigHex, "0x") {
		sigHex = "0x" + sigHex
	}

	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrBadSignature, len(sig))
	}

	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pubKey, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

// VerifySignature reports whether sigHex is expected's signature over message
func VerifySignature(message []byte, sigHex string, expected common.Address) (bool, error) {
	addr, err := RecoverAddress(message, sigHex)
	if err != nil {
		return false, err
	}
	return addr == expected, nil
}
