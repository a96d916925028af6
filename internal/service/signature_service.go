package service

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

const (
	personalMessagePrefix = "\x19Ethereum Signed Message:\n"
	signatureLength       = 65
	recoveryIDOffset      = 27
)

// PersonalSignVerifier implements ports.SignatureVerifier for EIP-191
// personal messages, as produced by wallet personal_sign.
type PersonalSignVerifier struct{}

// NewPersonalSignVerifier creates a new EIP-191 signature verifier.
func NewPersonalSignVerifier() *PersonalSignVerifier {
	return &PersonalSignVerifier{}
}

// PersonalMessageHash returns keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg).
func PersonalMessageHash(message string) []byte {
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "%s%d%s", personalMessagePrefix, len(message), message)
	return h.Sum(nil)
}

// Recover returns the checksummed address that signed message.
// The signature is 0x-prefixed hex of r || s || v with v in {0, 1, 27, 28}.
func (v *PersonalSignVerifier) Recover(message string, signature string) (string, error) {
	if !strings.HasPrefix(signature, "0x") && !strings.HasPrefix(signature, "0X") {
		return "", fmt.Errorf("signature must be 0x-prefixed hex")
	}
	sig, err := hexutil.Decode("0x" + signature[2:])
	if err != nil {
		return "", fmt.Errorf("decoding signature: %w", err)
	}
	if len(sig) != signatureLength {
		return "", fmt.Errorf("signature must be %d bytes, got %d", signatureLength, len(sig))
	}

	switch sig[64] {
	case 0, 1:
	case recoveryIDOffset, recoveryIDOffset + 1:
		sig[64] -= recoveryIDOffset
	default:
		return "", fmt.Errorf("invalid recovery id %d", sig[64])
	}

	pub, err := crypto.SigToPub(PersonalMessageHash(message), sig)
	if err != nil {
		return "", fmt.Errorf("recovering public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// SignPersonalMessage signs message the way a wallet's personal_sign does,
// returning 0x-prefixed hex with v in {27, 28}.
func SignPersonalMessage(key *ecdsa.PrivateKey, message string) (string, error) {
	sig, err := crypto.Sign(PersonalMessageHash(message), key)
	if err != nil {
		return "", fmt.Errorf("signing message: %w", err)
	}
	sig[64] += recoveryIDOffset
	return hexutil.Encode(sig), nil
}
