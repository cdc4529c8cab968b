package requestSigner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Layr-Labs/eigenx-request-signer/pkg/encoder"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

const SignatureLength = crypto.SignatureLength

var ErrSigningFailed = errors.New("signing failed")

// SigningFailedError carries the identity's error unchanged.
type SigningFailedError struct {
	Signer common.Address
	Cause  error
}

func (e *SigningFailedError) Error() string {
	return fmt.Sprintf("%s for %s: %v", ErrSigningFailed.Error(), e.Signer.Hex(), e.Cause)
}

func (e *SigningFailedError) Unwrap() error {
	return e.Cause
}

func (e *SigningFailedError) Is(target error) bool {
	return target == ErrSigningFailed
}

// ISigningIdentity is an account able to sign arbitrary bytes with the
// personal message convention:
//
//	keccak256("\x19Ethereum Signed Message:\n" + len(message) + message)
//
// The returned signature is 65 bytes, r || s || v. Implementations must be
// safe for concurrent use if shared between callers.
type ISigningIdentity interface {
	Address() common.Address
	SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error)
}

// SignatureResult is what a caller forwards to the verifier.
type SignatureResult struct {
	Timestamp  uint64
	PayloadHex string
	Signature  []byte
	Signer     common.Address
}

func (sr *SignatureResult) SignatureHex() string {
	return hexutil.Encode(sr.Signature)
}

func (sr *SignatureResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Timestamp uint64 `json:"timestamp"`
		Payload   string `json:"payload"`
		Signature string `json:"signature"`
		Signer    string `json:"signer"`
	}{
		Timestamp: sr.Timestamp,
		Payload:   sr.PayloadHex,
		Signature: sr.SignatureHex(),
		Signer:    sr.Signer.Hex(),
	})
}

type RequestSigner struct {
	logger *zap.Logger
}

func NewRequestSigner(logger *zap.Logger) *RequestSigner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestSigner{logger: logger}
}

// Sign signs payload with identity. Identity errors are returned wrapped in a
// SigningFailedError and are never retried.
func (rs *RequestSigner) Sign(ctx context.Context, payload *encoder.PackedPayload, identity ISigningIdentity) (*SignatureResult, error) {
	if payload == nil || len(payload.Data) == 0 {
		return nil, fmt.Errorf("payload cannot be empty")
	}
	if identity == nil {
		return nil, fmt.Errorf("signing identity cannot be nil")
	}

	signer := identity.Address()

	sig, err := identity.SignPersonalMessage(ctx, payload.Data)
	if err != nil {
		rs.logger.Warn("Identity failed to sign request",
			zap.String("signer", signer.Hex()),
			zap.Error(err),
		)
		return nil, &SigningFailedError{Signer: signer, Cause: err}
	}

	sig, err = NormalizeSignature(sig)
	if err != nil {
		return nil, &SigningFailedError{Signer: signer, Cause: err}
	}

	rs.logger.Debug("Signed request payload",
		zap.String("signer", signer.Hex()),
		zap.Int("payloadLen", len(payload.Data)),
		zap.Uint64("timestamp", payload.Timestamp),
	)

	return &SignatureResult{
		Timestamp:  payload.Timestamp,
		PayloadHex: payload.Hex(),
		Signature:  sig,
		Signer:     signer,
	}, nil
}

// NormalizeSignature checks the r || s || v shape and moves v into the
// 27/28 range expected by ecrecover. The input is not modified.
func NormalizeSignature(sig []byte) ([]byte, error) {
	if len(sig) != SignatureLength {
		return nil, fmt.Errorf("signature must be %d bytes, got %d", SignatureLength, len(sig))
	}
	out := make([]byte, SignatureLength)
	copy(out, sig)

	switch v := out[crypto.RecoveryIDOffset]; v {
	case 0, 1:
		out[crypto.RecoveryIDOffset] = v + 27
	case 27, 28:
	default:
		return nil, fmt.Errorf("invalid signature recovery id %d", v)
	}
	return out, nil
}

// PersonalMessageHash is the digest an identity signs for message.
func PersonalMessageHash(message []byte) []byte {
	return accounts.TextHash(message)
}

// RecoverSigner returns the address that produced sig over message under the
// personal message convention, as ecrecover would.
func RecoverSigner(message []byte, sig []byte) (common.Address, error) {
	normalized, err := NormalizeSignature(sig)
	if err != nil {
		return common.Address{}, err
	}
	normalized[crypto.RecoveryIDOffset] -= 27

	pub, err := crypto.SigToPub(PersonalMessageHash(message), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
