package main

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/eigenx-request-signer/internal/aws"
	"github.com/Layr-Labs/eigenx-request-signer/pkg/clients/web3signer"
	"github.com/Layr-Labs/eigenx-request-signer/pkg/config"
	"github.com/Layr-Labs/eigenx-request-signer/pkg/requestSigner"
	"github.com/Layr-Labs/eigenx-request-signer/pkg/signingIdentity/awsKmsSigningIdentity"
	"github.com/Layr-Labs/eigenx-request-signer/pkg/signingIdentity/inMemorySigningIdentity"
	"github.com/Layr-Labs/eigenx-request-signer/pkg/signingIdentity/web3SignerIdentity"
	awsSdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func parseSignerConfig(c *cli.Context) (*config.SignerConfig, error) {
	identityType, err := config.ParseIdentityType(c.String("identity"))
	if err != nil {
		return nil, err
	}

	cfg := &config.SignerConfig{
		IdentityType: identityType,
		Debug:        c.Bool("verbose"),
	}
	switch identityType {
	case config.IdentityTypeLocal:
		cfg.PrivateKey = c.String("private-key")
	case config.IdentityTypeAWSKMS:
		cfg.AWSKMS = &config.AWSKMSConfig{
			KeyId:  c.String("kms-key-id"),
			Region: c.String("aws-region"),
		}
	case config.IdentityTypeWeb3Signer:
		cfg.RemoteSigner = &config.RemoteSignerConfig{
			Url:         c.String("web3signer-url"),
			FromAddress: c.String("web3signer-address"),
			CACert:      c.String("web3signer-ca-cert"),
			Cert:        c.String("web3signer-cert"),
			Key:         c.String("web3signer-key"),
		}
	}
	return cfg, nil
}

// awsConfigLoader is swapped in tests so the kms path never reaches AWS.
type awsConfigLoader func(ctx context.Context, region string) (awsSdk.Config, error)

func loadVerifiedAWSConfig(ctx context.Context, region string) (awsSdk.Config, error) {
	awsCfg, err := aws.LoadAWSConfig(ctx, region)
	if err != nil {
		return awsSdk.Config{}, err
	}
	if _, err := aws.GetCallerIdentity(ctx, awsCfg); err != nil {
		return awsSdk.Config{}, err
	}
	return awsCfg, nil
}

func buildSigningIdentity(ctx context.Context, cfg *config.SignerConfig, loadAWS awsConfigLoader, l *zap.Logger) (requestSigner.ISigningIdentity, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid signer configuration: %w", err)
	}

	switch cfg.IdentityType {
	case config.IdentityTypeLocal:
		return inMemorySigningIdentity.NewInMemorySigningIdentityFromHex(cfg.PrivateKey, l)

	case config.IdentityTypeAWSKMS:
		awsCfg, err := loadAWS(ctx, cfg.AWSKMS.Region)
		if err != nil {
			return nil, err
		}
		return awsKmsSigningIdentity.NewAWSKMSSigningIdentityFromConfig(ctx, awsCfg, cfg.AWSKMS.KeyId, l)

	case config.IdentityTypeWeb3Signer:
		client, err := web3signer.NewWeb3SignerClientFromRemoteSignerConfig(cfg.RemoteSigner, l)
		if err != nil {
			return nil, fmt.Errorf("failed to create web3signer client: %w", err)
		}
		if err := client.Upcheck(ctx); err != nil {
			return nil, fmt.Errorf("web3signer at %s is not healthy: %w", cfg.RemoteSigner.Url, err)
		}
		identity, err := web3SignerIdentity.NewWeb3SignerIdentity(client, common.HexToAddress(cfg.RemoteSigner.FromAddress), l)
		if err != nil {
			return nil, err
		}
		if err := identity.VerifyAccount(ctx); err != nil {
			return nil, err
		}
		return identity, nil
	}
	return nil, fmt.Errorf("unsupported identity type %q", cfg.IdentityType)
}
