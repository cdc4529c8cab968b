package web3signer

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Layr-Labs/eigenx-request-signer/pkg/config"
	"go.uber.org/zap"
)

const (
	DefaultUrl     = "http://localhost:9000"
	DefaultTimeout = 30 * time.Second
)

type Config struct {
	BaseUrl string
	Timeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		BaseUrl: DefaultUrl,
		Timeout: DefaultTimeout,
	}
}

// Client is a JSON-RPC client for a Web3Signer instance.
type Client struct {
	config     *Config
	logger     *zap.Logger
	mu         sync.RWMutex
	httpClient *http.Client
	requestId  atomic.Uint64
}

type jsonRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      uint64        `json:"id"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *jsonRPCError) Error() string {
	return fmt.Sprintf("web3signer error %d: %s", e.Code, e.Message)
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BaseUrl == "" {
		return nil, fmt.Errorf("web3signer url cannot be empty")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		config: cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// NewWeb3SignerClientFromRemoteSignerConfig builds a client, configuring mTLS
// when certificates are provided. A nil config uses the defaults.
func NewWeb3SignerClientFromRemoteSignerConfig(rsc *config.RemoteSignerConfig, logger *zap.Logger) (*Client, error) {
	cfg := DefaultConfig()
	if rsc == nil {
		return NewClient(cfg, logger)
	}
	if rsc.Url != "" {
		cfg.BaseUrl = rsc.Url
	}

	client, err := NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	if rsc.CACert == "" && rsc.Cert == "" {
		return client, nil
	}

	tlsConfig, err := buildTLSConfig(rsc)
	if err != nil {
		return nil, fmt.Errorf("failed to build TLS config: %w", err)
	}
	client.SetHttpClient(&http.Client{
		Timeout:   cfg.Timeout,
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
	})
	return client, nil
}

func buildTLSConfig(rsc *config.RemoteSignerConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if rsc.CACert != "" {
		caPem, err := readPem(rsc.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPem) {
			return nil, fmt.Errorf("no certificates found in CA cert")
		}
		tlsConfig.RootCAs = pool
	}

	if rsc.Cert != "" && rsc.Key != "" {
		certPem, err := readPem(rsc.Cert)
		if err != nil {
			return nil, fmt.Errorf("failed to read client cert: %w", err)
		}
		keyPem, err := readPem(rsc.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to read client key: %w", err)
		}
		cert, err := tls.X509KeyPair(certPem, keyPem)
		if err != nil {
			return nil, fmt.Errorf("failed to load client key pair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

// readPem accepts either inline PEM or a path to a PEM file.
func readPem(value string) ([]byte, error) {
	if strings.Contains(value, "-----BEGIN") {
		return []byte(value), nil
	}
	return os.ReadFile(value)
}

func (c *Client) SetHttpClient(client *http.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.httpClient = client
}

func (c *Client) getHttpClient() *http.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.httpClient
}

func (c *Client) EthAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := c.call(ctx, "eth_accounts", []interface{}{}, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (c *Client) EthSign(ctx context.Context, account string, data string) (string, error) {
	var signature string
	if err := c.call(ctx, "eth_sign", []interface{}{account, data}, &signature); err != nil {
		return "", err
	}
	return signature, nil
}

// Upcheck is the unauthenticated health endpoint, not a JSON-RPC method.
func (c *Client) Upcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/upcheck"), nil)
	if err != nil {
		return fmt.Errorf("failed to create upcheck request: %w", err)
	}
	resp, err := c.getHttpClient().Do(req)
	if err != nil {
		return fmt.Errorf("upcheck request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upcheck returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.config.BaseUrl, "/") + path
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqBody := jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.requestId.Add(1),
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(""), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("Sending Web3Signer request",
		zap.String("method", method),
		zap.Uint64("id", reqBody.ID),
	)

	resp, err := c.getHttpClient().Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if len(rpcResp.Result) == 0 {
		return fmt.Errorf("%s response has no result", method)
	}

	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}
