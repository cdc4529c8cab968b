package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Layr-Labs/eigenx-request-signer/pkg/actions"
	"github.com/Layr-Labs/eigenx-request-signer/pkg/authorizer"
	"github.com/Layr-Labs/eigenx-request-signer/pkg/config"
	"github.com/Layr-Labs/eigenx-request-signer/pkg/encoder"
	"github.com/Layr-Labs/eigenx-request-signer/pkg/logger"
	"github.com/Layr-Labs/eigenx-request-signer/pkg/requestSigner"
	"github.com/Layr-Labs/eigenx-request-signer/pkg/server"
	"github.com/Layr-Labs/eigenx-request-signer/pkg/signingIdentity/awsKmsSigningIdentity"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "request-signer",
		Usage: "Encode and sign marketplace action requests",
		Description: `Builds the packed payload for a marketplace action and signs it with the
configured identity, so an on-chain verifier can recover the authorizing address.

Identities:
- local: raw secp256k1 key from PRIVATE_KEY_ADMIN
- aws-kms: ECC_SECG_P256K1 key held in AWS KMS
- web3signer: account held by a remote Web3Signer`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "identity",
				Usage:   fmt.Sprintf("Signing identity: %s", config.GetSupportedIdentityTypesString()),
				Value:   config.IdentityTypeLocal.String(),
				EnvVars: []string{config.EnvIdentityType},
			},
			&cli.StringFlag{
				Name:    "private-key",
				Usage:   "Hex secp256k1 private key for the local identity",
				EnvVars: []string{config.EnvPrivateKey},
			},
			&cli.StringFlag{
				Name:    "kms-key-id",
				Usage:   "AWS KMS key id, ARN or alias",
				EnvVars: []string{config.EnvKMSKeyID},
			},
			&cli.StringFlag{
				Name:    "aws-region",
				Usage:   "AWS region override",
				EnvVars: []string{config.EnvAWSRegion},
			},
			&cli.StringFlag{
				Name:    "web3signer-url",
				Usage:   "Web3Signer base URL",
				EnvVars: []string{config.EnvWeb3SignerURL},
			},
			&cli.StringFlag{
				Name:    "web3signer-address",
				Usage:   "Account address held by Web3Signer",
				EnvVars: []string{config.EnvWeb3SignerAddress},
			},
			&cli.StringFlag{
				Name:    "web3signer-ca-cert",
				Usage:   "CA certificate (PEM or path) for Web3Signer TLS",
				EnvVars: []string{config.EnvWeb3SignerCACert},
			},
			&cli.StringFlag{
				Name:    "web3signer-cert",
				Usage:   "Client certificate (PEM or path) for Web3Signer mTLS",
				EnvVars: []string{config.EnvWeb3SignerCert},
			},
			&cli.StringFlag{
				Name:    "web3signer-key",
				Usage:   "Client key (PEM or path) for Web3Signer mTLS",
				EnvVars: []string{config.EnvWeb3SignerKey},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvVerbose},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "sign",
				Usage: "Encode and sign a single action request",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "action",
						Usage:    fmt.Sprintf("Action to authorize: %s", strings.Join(actions.SupportedActionNames(), ", ")),
						Required: true,
					},
					&cli.StringFlag{
						Name:     "name",
						Usage:    "Listing name",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "amount",
						Usage: "Amount as a base-10 integer (ignored for register)",
						Value: "0",
					},
					&cli.StringFlag{
						Name:     "target",
						Usage:    "Target address (20-byte hex)",
						Required: true,
					},
					&cli.Uint64Flag{
						Name:  "timestamp",
						Usage: "Unix timestamp to embed (default: now)",
					},
				},
				Action: signCommand,
			},
			{
				Name:  "serve",
				Usage: "Run the HTTP signing gateway",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Usage:   "HTTP server port",
						Value:   config.DefaultPort,
						EnvVars: []string{config.EnvPort},
					},
					&cli.Float64Flag{
						Name:    "rate-limit",
						Usage:   "Requests per second, 0 disables limiting",
						Value:   config.DefaultRateLimit,
						EnvVars: []string{config.EnvRateLimit},
					},
					&cli.IntFlag{
						Name:    "burst",
						Usage:   "Rate limiter burst size",
						Value:   config.DefaultRateBurst,
						EnvVars: []string{config.EnvRateBurst},
					},
				},
				Action: serveCommand,
			},
			{
				Name:   "address",
				Usage:  "Print the address of the configured identity",
				Action: addressCommand,
			},
			{
				Name:  "recover",
				Usage: "Recover the signer of a payload and signature",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "payload",
						Usage:    "Payload hex as returned by sign",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "signature",
						Usage:    "65-byte signature hex",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Listing name, to print the decoded payload fields",
					},
				},
				Action: recoverCommand,
			},
			{
				Name:  "create-kms-key",
				Usage: "Create a secp256k1 signing key in AWS KMS for the aws-kms identity",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "key-name",
						Usage:    "Name tag for the new key",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "alias",
						Usage: "Alias to attach to the key",
					},
					&cli.StringFlag{
						Name:  "environment",
						Usage: "Environment tag, e.g. sepolia or mainnet",
					},
				},
				Action: createKMSKeyCommand,
			},
		},
	}
}

func newLogger(c *cli.Context) (*zap.Logger, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return l, nil
}

func newAuthorizer(c *cli.Context, l *zap.Logger) (*authorizer.Authorizer, error) {
	signerConfig, err := parseSignerConfig(c)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	identity, err := buildSigningIdentity(c.Context, signerConfig, loadVerifiedAWSConfig, l)
	if err != nil {
		return nil, err
	}
	return authorizer.NewAuthorizer(identity, actions.SystemClock{}, l)
}

func signCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	kind, err := actions.ParseActionKind(c.String("action"))
	if err != nil {
		return err
	}
	amount, ok := new(big.Int).SetString(c.String("amount"), 10)
	if !ok {
		return fmt.Errorf("invalid amount %q: must be a base-10 integer", c.String("amount"))
	}

	a, err := newAuthorizer(c, l)
	if err != nil {
		return err
	}

	req := &authorizer.ActionRequest{
		Kind:          kind,
		Name:          c.String("name"),
		Amount:        amount,
		TargetAddress: c.String("target"),
	}
	if c.IsSet("timestamp") {
		ts := c.Uint64("timestamp")
		req.Timestamp = &ts
	}

	result, err := a.Authorize(c.Context, req)
	if err != nil {
		return err
	}
	return printJSON(c, result)
}

func serveCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	serverConfig := &config.ServerConfig{
		Port:      c.Int("port"),
		RateLimit: c.Float64("rate-limit"),
		RateBurst: c.Int("burst"),
	}
	if err := serverConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a, err := newAuthorizer(c, l)
	if err != nil {
		return err
	}

	srv, err := server.NewServer(a, serverConfig, l)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	l.Sugar().Infow("Request signer running",
		"signer", a.Address().Hex(),
		"port", serverConfig.Port,
		"rate_limit", serverConfig.RateLimit,
	)
	l.Sugar().Infow("Available endpoints",
		"sign", "POST /sign",
		"address", "GET /address")

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	l.Sugar().Info("Shutting down")
	return srv.Stop(context.Background())
}

func addressCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	a, err := newAuthorizer(c, l)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, a.Address().Hex())
	return err
}

type recoverOutput struct {
	Signer        string `json:"signer"`
	Selector      string `json:"selector,omitempty"`
	Name          string `json:"name,omitempty"`
	Amount        string `json:"amount,omitempty"`
	TargetAddress string `json:"targetAddress,omitempty"`
	Timestamp     uint64 `json:"timestamp,omitempty"`
}

func recoverCommand(c *cli.Context) error {
	payload, err := hexutil.Decode(ensure0x(c.String("payload")))
	if err != nil {
		return fmt.Errorf("%w: payload: %v", encoder.ErrInvalidHex, err)
	}
	sig, err := hexutil.Decode(ensure0x(c.String("signature")))
	if err != nil {
		return fmt.Errorf("%w: signature: %v", encoder.ErrInvalidHex, err)
	}

	signer, err := requestSigner.RecoverSigner(payload, sig)
	if err != nil {
		return err
	}
	out := recoverOutput{Signer: signer.Hex()}

	if name := c.String("name"); name != "" {
		decoded, err := encoder.Decode(payload, len(name))
		if err != nil {
			return err
		}
		out.Selector = decoded.Selector.Hex()
		out.Name = string(decoded.Name)
		out.Amount = decoded.Amount.String()
		out.TargetAddress = decoded.TargetAddress.Hex()
		out.Timestamp = decoded.Timestamp
	}
	return printJSON(c, out)
}

func createKMSKeyCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	awsCfg, err := loadVerifiedAWSConfig(c.Context, c.String("aws-region"))
	if err != nil {
		return err
	}

	identity, err := awsKmsSigningIdentity.ProvisionSigningKey(c.Context, kms.NewFromConfig(awsCfg), &awsKmsSigningIdentity.ProvisionKeyRequest{
		KeyName:     c.String("key-name"),
		AliasName:   c.String("alias"),
		Environment: c.String("environment"),
	}, l)
	if err != nil {
		return err
	}

	return printJSON(c, struct {
		KeyId   string `json:"keyId"`
		Address string `json:"address"`
	}{
		KeyId:   identity.KeyId(),
		Address: identity.Address().Hex(),
	})
}

func printJSON(c *cli.Context, v interface{}) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func ensure0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return "0x" + s[2:]
	}
	return "0x" + s
}
