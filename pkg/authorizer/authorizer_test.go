package authorizer

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/Layr-Labs/eigenx-request-signer/pkg/actions"
	"github.com/Layr-Labs/eigenx-request-signer/pkg/encoder"
	"github.com/Layr-Labs/eigenx-request-signer/pkg/requestSigner"
	"github.com/Layr-Labs/eigenx-request-signer/pkg/signingIdentity/inMemorySigningIdentity"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	testPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testTarget     = "0xb54e978a34Af50228a3564662dB6005E9fB04f5a"
)

// countingIdentity records how often it was asked to sign.
type countingIdentity struct {
	requestSigner.ISigningIdentity
	calls atomic.Int32
	err   error
}

func (c *countingIdentity) SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.ISigningIdentity.SignPersonalMessage(ctx, message)
}

func newIdentity(t *testing.T) *countingIdentity {
	inner, err := inMemorySigningIdentity.NewInMemorySigningIdentityFromHex(testPrivateKey, zaptest.NewLogger(t))
	require.NoError(t, err)
	return &countingIdentity{ISigningIdentity: inner}
}

func Test_Authorizer(t *testing.T) {
	ctx := context.Background()
	l := zaptest.NewLogger(t)

	t.Run("end to end for the reference request", func(t *testing.T) {
		identity := newIdentity(t)
		a, err := NewAuthorizer(identity, actions.FixedClock(1701862739), l)
		require.NoError(t, err)

		result, err := a.Authorize(ctx, &ActionRequest{
			Kind:          actions.ActionKindRenewOwnership,
			Name:          "hi",
			Amount:        big.NewInt(70000000000000000),
			TargetAddress: testTarget,
		})
		require.NoError(t, err)

		assert.Equal(t, uint64(1701862739), result.Timestamp)
		assert.Equal(t,
			"cb62320d6869000000000000000000f8b0a10e470000b54e978a34af50228a3564662db6005e9fb04f5a00000000000000000000000065705d53",
			result.PayloadHex,
		)
		assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), result.Signer)
		assert.Equal(t, a.Address(), result.Signer)

		payload, err := encoder.DecodeHex(result.PayloadHex, 2)
		require.NoError(t, err)
		assert.Equal(t, uint64(1701862739), payload.Timestamp)

		data := common.FromHex(result.PayloadHex)
		recovered, err := requestSigner.RecoverSigner(data, result.Signature)
		require.NoError(t, err)
		assert.Equal(t, result.Signer, recovered)
	})

	t.Run("explicit timestamp", func(t *testing.T) {
		a, err := NewAuthorizer(newIdentity(t), actions.FixedClock(1), l)
		require.NoError(t, err)

		ts := uint64(99)
		result, err := a.Authorize(ctx, &ActionRequest{
			Kind:          actions.ActionKindBuyShare,
			Name:          "alice",
			Amount:        big.NewInt(5),
			TargetAddress: testTarget,
			Timestamp:     &ts,
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(99), result.Timestamp)
	})

	t.Run("invalid input never reaches the identity", func(t *testing.T) {
		identity := newIdentity(t)
		a, err := NewAuthorizer(identity, actions.FixedClock(1), l)
		require.NoError(t, err)

		_, err = a.Authorize(ctx, &ActionRequest{
			Kind:          actions.ActionKindSellShare,
			Name:          "alice",
			Amount:        big.NewInt(5),
			TargetAddress: "0xb54e978a34af50228a3564662db6005e9fb04f",
		})
		assert.ErrorIs(t, err, encoder.ErrInvalidAddress)

		_, err = a.Authorize(ctx, &ActionRequest{
			Kind:          actions.ActionKindRegister,
			TargetAddress: testTarget,
		})
		assert.ErrorIs(t, err, encoder.ErrEmptyName)

		assert.Equal(t, int32(0), identity.calls.Load())
	})

	t.Run("signing failure is surfaced once", func(t *testing.T) {
		identity := newIdentity(t)
		identity.err = errors.New("hsm offline")
		a, err := NewAuthorizer(identity, actions.FixedClock(1), l)
		require.NoError(t, err)

		_, err = a.Authorize(ctx, &ActionRequest{
			Kind:          actions.ActionKindRegister,
			Name:          "alice",
			TargetAddress: testTarget,
		})
		assert.ErrorIs(t, err, requestSigner.ErrSigningFailed)
		assert.ErrorIs(t, err, identity.err)
		assert.Equal(t, int32(1), identity.calls.Load())
	})

	t.Run("constructor validation", func(t *testing.T) {
		_, err := NewAuthorizer(nil, nil, l)
		assert.Error(t, err)

		_, err = (&Authorizer{}).Authorize(ctx, nil)
		assert.Error(t, err)
	})
}
