package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/Layr-Labs/eigenx-request-signer/pkg/config"
	awsSdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	testPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testSigner     = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testTarget     = "0xb54e978a34Af50228a3564662dB6005E9fB04f5a"
)

func runApp(t *testing.T, args ...string) (string, error) {
	unsetEnv(t, config.EnvPrivateKey)
	unsetEnv(t, config.EnvIdentityType)

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(append([]string{"request-signer"}, args...))
	return out.String(), err
}

func unsetEnv(t *testing.T, key string) {
	if prev, ok := os.LookupEnv(key); ok {
		require.NoError(t, os.Unsetenv(key))
		t.Cleanup(func() { _ = os.Setenv(key, prev) })
	}
}

func Test_SignAndRecover(t *testing.T) {
	out, err := runApp(t,
		"--private-key", testPrivateKey,
		"sign",
		"--action", "renew-ownership",
		"--name", "hi",
		"--amount", "70000000000000000",
		"--target", testTarget,
		"--timestamp", "1701862739",
	)
	require.NoError(t, err)

	var signed struct {
		Timestamp uint64 `json:"timestamp"`
		Payload   string `json:"payload"`
		Signature string `json:"signature"`
		Signer    string `json:"signer"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &signed))
	assert.Equal(t, uint64(1701862739), signed.Timestamp)
	assert.Equal(t,
		"cb62320d6869000000000000000000f8b0a10e470000b54e978a34af50228a3564662db6005e9fb04f5a00000000000000000000000065705d53",
		signed.Payload,
	)
	assert.Equal(t, testSigner, signed.Signer)

	out, err = runApp(t, "recover", "--payload", signed.Payload, "--signature", signed.Signature, "--name", "hi")
	require.NoError(t, err)

	var recovered recoverOutput
	require.NoError(t, json.Unmarshal([]byte(out), &recovered))
	assert.Equal(t, testSigner, recovered.Signer)
	assert.Equal(t, "cb62320d", recovered.Selector)
	assert.Equal(t, "hi", recovered.Name)
	assert.Equal(t, "70000000000000000", recovered.Amount)
	assert.True(t, strings.EqualFold(testTarget, recovered.TargetAddress))
	assert.Equal(t, uint64(1701862739), recovered.Timestamp)
}

func Test_AddressCommand(t *testing.T) {
	out, err := runApp(t, "--private-key", testPrivateKey, "address")
	require.NoError(t, err)
	assert.Equal(t, testSigner+"\n", out)
}

func Test_SignCommand_Errors(t *testing.T) {
	_, err := runApp(t, "--private-key", testPrivateKey, "sign",
		"--action", "transfer", "--name", "hi", "--target", testTarget)
	assert.Error(t, err)

	_, err = runApp(t, "--private-key", testPrivateKey, "sign",
		"--action", "buy-share", "--name", "hi", "--amount", "ten", "--target", testTarget)
	assert.Error(t, err)

	_, err = runApp(t, "sign", "--action", "register", "--name", "hi", "--target", testTarget)
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.EnvPrivateKey)
}

func Test_BuildSigningIdentity(t *testing.T) {
	l := zaptest.NewLogger(t)
	ctx := context.Background()

	t.Run("local", func(t *testing.T) {
		identity, err := buildSigningIdentity(ctx, &config.SignerConfig{
			IdentityType: config.IdentityTypeLocal,
			PrivateKey:   testPrivateKey,
		}, nil, l)
		require.NoError(t, err)
		assert.Equal(t, testSigner, identity.Address().Hex())
	})

	t.Run("aws kms config failure stops before kms", func(t *testing.T) {
		loaderErr := errors.New("no credentials")
		var gotRegion string
		loader := func(_ context.Context, region string) (awsSdk.Config, error) {
			gotRegion = region
			return awsSdk.Config{}, loaderErr
		}
		_, err := buildSigningIdentity(ctx, &config.SignerConfig{
			IdentityType: config.IdentityTypeAWSKMS,
			AWSKMS:       &config.AWSKMSConfig{KeyId: "alias/request-signer", Region: "us-east-2"},
		}, loader, l)
		assert.ErrorIs(t, err, loaderErr)
		assert.Equal(t, "us-east-2", gotRegion)
	})

	t.Run("web3signer account check", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				ID uint64 `json:"id"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"result":  []string{"0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"},
			})
		}))
		defer srv.Close()

		identity, err := buildSigningIdentity(ctx, &config.SignerConfig{
			IdentityType: config.IdentityTypeWeb3Signer,
			RemoteSigner: &config.RemoteSignerConfig{Url: srv.URL, FromAddress: testSigner},
		}, nil, l)
		require.NoError(t, err)
		assert.Equal(t, testSigner, identity.Address().Hex())

		_, err = buildSigningIdentity(ctx, &config.SignerConfig{
			IdentityType: config.IdentityTypeWeb3Signer,
			RemoteSigner: &config.RemoteSignerConfig{Url: srv.URL, FromAddress: testTarget},
		}, nil, l)
		assert.Error(t, err)
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := buildSigningIdentity(ctx, &config.SignerConfig{IdentityType: config.IdentityTypeAWSKMS}, nil, l)
		assert.Error(t, err)
	})
}
