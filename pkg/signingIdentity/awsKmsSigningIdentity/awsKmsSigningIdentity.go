package awsKmsSigningIdentity

import (
	"context"
	cryptoEcdsa "crypto/ecdsa"
	"encoding/asn1"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/crypto-libs/pkg/ecdsa"
	"github.com/Layr-Labs/eigenx-request-signer/pkg/requestSigner"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// secp256k1 curve order, for low-S canonicalization
var (
	secp256k1N, _  = new(big.Int).SetString("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141", 16)
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

// KMSAPI is the subset of *kms.Client used to sign.
type KMSAPI interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

var _ KMSAPI = (*kms.Client)(nil)

// AWSKMSSigningIdentity signs with an ECC_SECG_P256K1 key that never leaves
// AWS KMS. The public key is fetched once at construction.
type AWSKMSSigningIdentity struct {
	logger    *zap.Logger
	kmsClient KMSAPI
	keyId     string
	publicKey *cryptoEcdsa.PublicKey
	address   common.Address
}

var _ requestSigner.ISigningIdentity = (*AWSKMSSigningIdentity)(nil)

func NewAWSKMSSigningIdentityFromConfig(ctx context.Context, awsCfg aws.Config, keyId string, logger *zap.Logger) (*AWSKMSSigningIdentity, error) {
	return NewAWSKMSSigningIdentity(ctx, kms.NewFromConfig(awsCfg), keyId, logger)
}

func NewAWSKMSSigningIdentity(ctx context.Context, kmsClient KMSAPI, keyId string, logger *zap.Logger) (*AWSKMSSigningIdentity, error) {
	if kmsClient == nil {
		return nil, fmt.Errorf("kms client cannot be nil")
	}
	if keyId == "" {
		return nil, fmt.Errorf("kms key id cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &AWSKMSSigningIdentity{
		logger:    logger,
		kmsClient: kmsClient,
		keyId:     keyId,
	}

	pubKey, err := a.getPublicKey(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get public key for key %s", keyId)
	}

	pk := &ecdsa.PublicKey{
		X: pubKey.X,
		Y: pubKey.Y,
	}
	addr, err := pk.DeriveAddress()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to derive Ethereum address from public key for key %s", keyId)
	}

	a.publicKey = pubKey
	a.address = common.HexToAddress(addr.String())

	logger.Info("Loaded AWS KMS signing identity",
		zap.String("keyId", keyId),
		zap.String("address", a.address.Hex()),
	)
	return a, nil
}

func (a *AWSKMSSigningIdentity) Address() common.Address {
	return a.address
}

func (a *AWSKMSSigningIdentity) KeyId() string {
	return a.keyId
}

func (a *AWSKMSSigningIdentity) SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error) {
	digest := requestSigner.PersonalMessageHash(message)
	sig, err := a.signDigest(ctx, digest)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to sign message with key %s", a.keyId)
	}
	return sig, nil
}

func (a *AWSKMSSigningIdentity) getPublicKey(ctx context.Context) (*cryptoEcdsa.PublicKey, error) {
	out, err := a.kmsClient.GetPublicKey(ctx, &kms.GetPublicKeyInput{
		KeyId: aws.String(a.keyId),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}
	if out.KeySpec != "" && out.KeySpec != types.KeySpecEccSecgP256k1 {
		return nil, fmt.Errorf("key spec %s is not %s", out.KeySpec, types.KeySpecEccSecgP256k1)
	}
	return parseECDSAPublicKey(out.PublicKey)
}

// parseECDSAPublicKey parses the DER-encoded SubjectPublicKeyInfo returned by KMS
func parseECDSAPublicKey(derBytes []byte) (*cryptoEcdsa.PublicKey, error) {
	var asn1pubk asn1EcPublicKey
	_, err := asn1.Unmarshal(derBytes, &asn1pubk)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ASN.1 public key: %w", err)
	}

	return crypto.UnmarshalPubkey(asn1pubk.PublicKey.Bytes)
}

type asn1EcSig struct {
	R asn1.RawValue
	S asn1.RawValue
}

type asn1EcPublicKey struct {
	EcPublicKeyInfo asn1EcPublicKeyInfo
	PublicKey       asn1.BitString
}

type asn1EcPublicKeyInfo struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.ObjectIdentifier
}

// signDigest asks KMS for a DER signature over digest and converts it to the
// 65-byte r || s || v form, v in {27, 28}.
func (a *AWSKMSSigningIdentity) signDigest(ctx context.Context, digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("hash must be exactly 32 bytes, got %d", len(digest))
	}

	signOutput, err := a.kmsClient.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(a.keyId),
		Message:          digest,
		SigningAlgorithm: types.SigningAlgorithmSpecEcdsaSha256,
		MessageType:      types.MessageTypeDigest,
	})
	if err != nil {
		return nil, err
	}

	var sigAsn1 asn1EcSig
	if _, err := asn1.Unmarshal(signOutput.Signature, &sigAsn1); err != nil {
		return nil, fmt.Errorf("failed to parse ASN.1 signature: %w", err)
	}

	r := new(big.Int).SetBytes(sigAsn1.R.Bytes)
	s := new(big.Int).SetBytes(sigAsn1.S.Bytes)
	if r.Sign() == 0 || s.Sign() == 0 || r.Cmp(secp256k1N) >= 0 || s.Cmp(secp256k1N) >= 0 {
		return nil, fmt.Errorf("signature values out of range")
	}

	// ecrecover rejects high-S signatures
	if s.Cmp(secp256k1HalfN) > 0 {
		s = new(big.Int).Sub(secp256k1N, s)
	}

	signature := make([]byte, crypto.SignatureLength)
	r.FillBytes(signature[0:32])
	s.FillBytes(signature[32:64])

	// crypto.Ecrecover expects a recovery id of 0 or 1
	for recoveryId := byte(0); recoveryId < 2; recoveryId++ {
		signature[crypto.RecoveryIDOffset] = recoveryId

		recovered, err := crypto.SigToPub(digest, signature)
		if err != nil {
			a.logger.Debug("Ecrecover failed",
				zap.Uint8("recoveryId", recoveryId),
				zap.Error(err))
			continue
		}

		if recovered.X.Cmp(a.publicKey.X) == 0 && recovered.Y.Cmp(a.publicKey.Y) == 0 {
			signature[crypto.RecoveryIDOffset] = 27 + recoveryId
			return signature, nil
		}
	}

	return nil, fmt.Errorf("could not determine valid recovery ID - signature recovery failed")
}
