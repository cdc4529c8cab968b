package authorizer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/eigenx-request-signer/pkg/actions"
	"github.com/Layr-Labs/eigenx-request-signer/pkg/requestSigner"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// ActionRequest is a caller's request to authorize one action.
type ActionRequest struct {
	Kind          actions.ActionKind
	Name          string
	Amount        *big.Int
	TargetAddress string
	// Timestamp overrides the clock when set.
	Timestamp *uint64
}

// Authorizer encodes and signs action requests with a single identity.
type Authorizer struct {
	dispatcher *actions.Dispatcher
	signer     *requestSigner.RequestSigner
	identity   requestSigner.ISigningIdentity
	logger     *zap.Logger
}

func NewAuthorizer(identity requestSigner.ISigningIdentity, clock actions.Clock, logger *zap.Logger) (*Authorizer, error) {
	if identity == nil {
		return nil, fmt.Errorf("signing identity cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authorizer{
		dispatcher: actions.NewDispatcher(clock),
		signer:     requestSigner.NewRequestSigner(logger),
		identity:   identity,
		logger:     logger,
	}, nil
}

func (a *Authorizer) Address() common.Address {
	return a.identity.Address()
}

// Authorize validates and encodes req, then signs it. Validation errors are
// returned before the identity is contacted.
func (a *Authorizer) Authorize(ctx context.Context, req *ActionRequest) (*requestSigner.SignatureResult, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}

	var opts []actions.Option
	if req.Timestamp != nil {
		opts = append(opts, actions.WithTimestamp(*req.Timestamp))
	}

	payload, err := a.dispatcher.Build(req.Kind, req.Name, req.Amount, req.TargetAddress, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", req.Kind, err)
	}

	result, err := a.signer.Sign(ctx, payload, a.identity)
	if err != nil {
		return nil, err
	}

	a.logger.Info("Authorized request",
		zap.String("action", req.Kind.String()),
		zap.String("target", req.TargetAddress),
		zap.Uint64("timestamp", result.Timestamp),
		zap.String("signer", result.Signer.Hex()),
	)
	return result, nil
}
