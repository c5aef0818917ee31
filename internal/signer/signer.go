// Package signer holds the service key that signs withdrawal authorizations.
// The key is loaded once at startup and never leaves this package.
package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLen is the width of an R || S || V signature.
const SignatureLen = 65

// ErrKeyUnavailable means the signing key could not be loaded. The service
// must not serve withdrawals without it.
var ErrKeyUnavailable = errors.New("signing key unavailable")

// Signer signs 32-byte digests with a secp256k1 key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// Load reads the key referenced by ref from src.
func Load(src KeySource, ref string) (*Signer, error) {
	hexKey, err := src.Retrieve(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
	return FromHex(hexKey)
}

// FromHex parses a hex private key, with or without 0x.
func FromHex(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(normaliseHexKey(hexKey))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing private key: %v", ErrKeyUnavailable, err)
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address is the public identity the withdrawal contract must trust.
func (s *Signer) Address() common.Address { return s.address }

// SignDigest signs a 32-byte digest. V is 27 or 28.
func (s *Signer) SignDigest(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("signing digest: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// String never includes key material.
func (s *Signer) String() string { return "signer(" + s.address.Hex() + ")" }

// GoString keeps %#v from dumping the key.
func (s *Signer) GoString() string { return s.String() }

// Recover returns the address that produced sig over digest.
func Recover(digest, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLen {
		return common.Address{}, fmt.Errorf("invalid signature length: expected %d bytes, got %d", SignatureLen, len(sig))
	}
	rsv := make([]byte, SignatureLen)
	copy(rsv, sig)
	if rsv[64] >= 27 {
		rsv[64] -= 27
	}
	pub, err := crypto.SigToPub(digest, rsv)
	if err != nil {
		return common.Address{}, fmt.Errorf("recovering signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
