package cryptography

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const SignatureLength = crypto.SignatureLength

// ParsePrivateKey accepts a hex key with or without 0x.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// SignPersonalHash signs data as an Ethereum personal message. The recovery byte is 27 or 28.
func SignPersonalHash(data []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("private key is nil")
	}
	signature, err := crypto.Sign(accounts.TextHash(data), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	signature[crypto.RecoveryIDOffset] += 27
	return signature, nil
}

func SignMessage(message string, privateKey string) (string, error) {
	key, err := ParsePrivateKey(privateKey)
	if err != nil {
		return "", err
	}
	signature, err := SignPersonalHash([]byte(message), key)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(signature), nil
}

// RecoverPersonalSigner returns the address that produced signature over data.
func RecoverPersonalSigner(data []byte, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(signature))
	}
	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pubKey, err := crypto.SigToPub(accounts.TextHash(data), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

func VerifySignature(message string, signature string, signerAddress string) (bool, error) {
	signatureBytes, err := hexutil.Decode(signature)
	if err != nil {
		return false, fmt.Errorf("invalid signature: %w", err)
	}
	recovered, err := RecoverPersonalSigner([]byte(message), signatureBytes)
	if err != nil {
		return false, err
	}
	return recovered == common.HexToAddress(signerAddress), nil
}
