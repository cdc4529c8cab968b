package inMemorySigningIdentity

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/Layr-Labs/eigenx-request-signer/pkg/requestSigner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// InMemorySigningIdentity signs with a secp256k1 key held in process memory.
// It is immutable after construction and safe for concurrent use.
type InMemorySigningIdentity struct {
	logger     *zap.Logger
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

var _ requestSigner.ISigningIdentity = (*InMemorySigningIdentity)(nil)

func NewInMemorySigningIdentity(privateKey *ecdsa.PrivateKey, logger *zap.Logger) (*InMemorySigningIdentity, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("private key cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemorySigningIdentity{
		logger:     logger,
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

// NewInMemorySigningIdentityFromHex loads a 32-byte hex key, with or without 0x.
func NewInMemorySigningIdentityFromHex(privateKeyHex string, logger *zap.Logger) (*InMemorySigningIdentity, error) {
	keyHex := strings.TrimSpace(privateKeyHex)
	keyHex = strings.TrimPrefix(strings.TrimPrefix(keyHex, "0x"), "0X")
	if keyHex == "" {
		return nil, fmt.Errorf("private key cannot be empty")
	}

	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		// the key itself is never included in the error
		return nil, fmt.Errorf("error loading private key: invalid secp256k1 key")
	}
	return NewInMemorySigningIdentity(key, logger)
}

// GenerateInMemorySigningIdentity creates an identity with a fresh random key.
func GenerateInMemorySigningIdentity(logger *zap.Logger) (*InMemorySigningIdentity, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDSA key: %w", err)
	}
	return NewInMemorySigningIdentity(key, logger)
}

func (ims *InMemorySigningIdentity) Address() common.Address {
	return ims.address
}

func (ims *InMemorySigningIdentity) SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash := requestSigner.PersonalMessageHash(message)
	sig, err := crypto.Sign(hash, ims.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	ims.logger.Debug("Signed personal message with in-memory key",
		zap.String("address", ims.address.Hex()),
		zap.Int("messageLen", len(message)),
	)
	return sig, nil
}
