package awsKmsSigningIdentity

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// KMSKeyAdminAPI is the subset of *kms.Client needed to create a signing key.
type KMSKeyAdminAPI interface {
	KMSAPI
	CreateKey(ctx context.Context, params *kms.CreateKeyInput, optFns ...func(*kms.Options)) (*kms.CreateKeyOutput, error)
	CreateAlias(ctx context.Context, params *kms.CreateAliasInput, optFns ...func(*kms.Options)) (*kms.CreateAliasOutput, error)
}

var _ KMSKeyAdminAPI = (*kms.Client)(nil)

type ProvisionKeyRequest struct {
	KeyName     string
	AliasName   string // optional, without the alias/ prefix
	Environment string
}

// ProvisionSigningKey creates a secp256k1 sign/verify key, aliases it when
// requested, and loads it as a signing identity.
func ProvisionSigningKey(ctx context.Context, kmsClient KMSKeyAdminAPI, req *ProvisionKeyRequest, logger *zap.Logger) (*AWSKMSSigningIdentity, error) {
	if kmsClient == nil {
		return nil, fmt.Errorf("kms client cannot be nil")
	}
	if req == nil || req.KeyName == "" {
		return nil, fmt.Errorf("key name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	keyRes, err := createSigningKey(ctx, kmsClient, req.KeyName, req.Environment)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create signing key %s", req.KeyName)
	}
	keyId := aws.ToString(keyRes.KeyMetadata.KeyId)

	if req.AliasName != "" {
		if err := createKeyAlias(ctx, kmsClient, keyId, req.AliasName); err != nil {
			return nil, errors.Wrapf(err, "failed to create alias %s for key %s", req.AliasName, keyId)
		}
	}

	logger.Info("Provisioned AWS KMS signing key",
		zap.String("keyName", req.KeyName),
		zap.String("keyId", keyId),
		zap.String("alias", req.AliasName),
	)
	return NewAWSKMSSigningIdentity(ctx, kmsClient, keyId, logger)
}

func createSigningKey(ctx context.Context, kmsClient KMSKeyAdminAPI, keyName, environment string) (*kms.CreateKeyOutput, error) {
	tags := []types.Tag{
		{TagKey: aws.String("Name"), TagValue: aws.String(keyName)},
		{TagKey: aws.String("Purpose"), TagValue: aws.String("request-signing")},
		{TagKey: aws.String("KeyType"), TagValue: aws.String("ECDSA")},
		{TagKey: aws.String("Curve"), TagValue: aws.String("secp256k1")},
	}
	if environment != "" {
		tags = append(tags, types.Tag{TagKey: aws.String("Environment"), TagValue: aws.String(environment)})
	}

	result, err := kmsClient.CreateKey(ctx, &kms.CreateKeyInput{
		KeyUsage:    types.KeyUsageTypeSignVerify,
		KeySpec:     types.KeySpecEccSecgP256k1,
		Description: aws.String(fmt.Sprintf("Request signing key - %s", keyName)),
		Tags:        tags,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create KMS key: %w", err)
	}
	if result.KeyMetadata == nil || result.KeyMetadata.KeyId == nil {
		return nil, fmt.Errorf("KMS returned no key metadata")
	}
	return result, nil
}

func createKeyAlias(ctx context.Context, kmsClient KMSKeyAdminAPI, keyId, aliasName string) error {
	_, err := kmsClient.CreateAlias(ctx, &kms.CreateAliasInput{
		AliasName:   aws.String("alias/" + strings.TrimPrefix(aliasName, "alias/")),
		TargetKeyId: aws.String(keyId),
	})
	if err != nil {
		return fmt.Errorf("failed to create key alias: %w", err)
	}
	return nil
}
