package web3signer

import (
	"context"
	"net/http"
)

// IWeb3Signer is the part of the Web3Signer API a signing identity needs.
type IWeb3Signer interface {
	SetHttpClient(client *http.Client)

	// EthAccounts lists the addresses Web3Signer holds keys for (eth_accounts).
	EthAccounts(ctx context.Context) ([]string, error)

	// EthSign signs hex data for account (eth_sign). Web3Signer prepends
	// "\x19Ethereum Signed Message:\n" + len before hashing, so data must be
	// the raw message and not a digest.
	EthSign(ctx context.Context, account string, data string) (string, error)

	Upcheck(ctx context.Context) error
}

var _ IWeb3Signer = (*Client)(nil)
