package web3SignerIdentity

import (
	"context"
	"fmt"
	"strings"

	"github.com/Layr-Labs/eigenx-request-signer/pkg/clients/web3signer"
	"github.com/Layr-Labs/eigenx-request-signer/pkg/requestSigner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

// Web3SignerIdentity delegates signing to a remote Web3Signer over eth_sign,
// which applies the personal message prefix on the server side.
type Web3SignerIdentity struct {
	client      web3signer.IWeb3Signer
	fromAddress common.Address
	logger      *zap.Logger
}

var _ requestSigner.ISigningIdentity = (*Web3SignerIdentity)(nil)

func NewWeb3SignerIdentity(client web3signer.IWeb3Signer, fromAddress common.Address, logger *zap.Logger) (*Web3SignerIdentity, error) {
	if client == nil {
		return nil, fmt.Errorf("web3signer client cannot be nil")
	}
	if fromAddress == (common.Address{}) {
		return nil, fmt.Errorf("from address cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Web3SignerIdentity{
		client:      client,
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// VerifyAccount checks that the remote signer holds a key for the from address.
func (w *Web3SignerIdentity) VerifyAccount(ctx context.Context) error {
	accounts, err := w.client.EthAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list web3signer accounts: %w", err)
	}
	for _, account := range accounts {
		if strings.EqualFold(account, w.fromAddress.Hex()) {
			return nil
		}
	}
	return fmt.Errorf("web3signer has no key for address %s", w.fromAddress.Hex())
}

func (w *Web3SignerIdentity) Address() common.Address {
	return w.fromAddress
}

func (w *Web3SignerIdentity) SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error) {
	sigHex, err := w.client.EthSign(ctx, w.fromAddress.Hex(), hexutil.Encode(message))
	if err != nil {
		return nil, fmt.Errorf("failed to sign message with Web3Signer: %w", err)
	}

	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Web3Signer signature: %w", err)
	}

	w.logger.Debug("Signed personal message with Web3Signer",
		zap.String("address", w.fromAddress.Hex()),
		zap.Int("messageLen", len(message)),
	)
	return sig, nil
}
