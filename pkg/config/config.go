package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for the request signer
const (
	EnvPrivateKey        = "PRIVATE_KEY_ADMIN"
	EnvIdentityType      = "SIGNER_IDENTITY"
	EnvKMSKeyID          = "SIGNER_KMS_KEY_ID"
	EnvAWSRegion         = "SIGNER_AWS_REGION"
	EnvWeb3SignerURL     = "SIGNER_WEB3SIGNER_URL"
	EnvWeb3SignerAddress = "SIGNER_WEB3SIGNER_ADDRESS"
	EnvWeb3SignerCACert  = "SIGNER_WEB3SIGNER_CA_CERT"
	EnvWeb3SignerCert    = "SIGNER_WEB3SIGNER_CERT"
	EnvWeb3SignerKey     = "SIGNER_WEB3SIGNER_KEY"
	EnvPort              = "SIGNER_PORT"
	EnvRateLimit         = "SIGNER_RATE_LIMIT"
	EnvRateBurst         = "SIGNER_RATE_BURST"
	EnvVerbose           = "SIGNER_VERBOSE"
)

type IdentityType string

func (i IdentityType) String() string {
	return string(i)
}

const (
	IdentityTypeLocal      IdentityType = "local"
	IdentityTypeAWSKMS     IdentityType = "aws-kms"
	IdentityTypeWeb3Signer IdentityType = "web3signer"
)

func GetSupportedIdentityTypes() []IdentityType {
	return []IdentityType{
		IdentityTypeLocal,
		IdentityTypeAWSKMS,
		IdentityTypeWeb3Signer,
	}
}

// GetSupportedIdentityTypesString returns supported identity types for CLI help
func GetSupportedIdentityTypesString() string {
	types := GetSupportedIdentityTypes()
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, t.String())
	}
	return strings.Join(names, ", ")
}

func ParseIdentityType(s string) (IdentityType, error) {
	for _, t := range GetSupportedIdentityTypes() {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unsupported identity type %q. Supported: %s", s, GetSupportedIdentityTypesString())
}

type RemoteSignerConfig struct {
	Url         string `json:"url" yaml:"url"`
	CACert      string `json:"caCert" yaml:"caCert"`
	Cert        string `json:"cert" yaml:"cert"`
	Key         string `json:"key" yaml:"key"`
	FromAddress string `json:"fromAddress" yaml:"fromAddress"`
}

func (rsc *RemoteSignerConfig) Validate() error {
	return rsc.validate(field.NewPath("remoteSigner")).ToAggregate()
}

func (rsc *RemoteSignerConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	if rsc.Url == "" {
		allErrors = append(allErrors, field.Required(path.Child("url"), "url is required"))
	} else if u, err := url.Parse(rsc.Url); err != nil || u.Scheme == "" || u.Host == "" {
		allErrors = append(allErrors, field.Invalid(path.Child("url"), rsc.Url, "must be an absolute URL"))
	}
	if rsc.FromAddress == "" {
		allErrors = append(allErrors, field.Required(path.Child("fromAddress"), "fromAddress is required"))
	} else if !common.IsHexAddress(rsc.FromAddress) {
		allErrors = append(allErrors, field.Invalid(path.Child("fromAddress"), rsc.FromAddress, "must be a 20-byte hex address"))
	}
	if (rsc.Cert == "") != (rsc.Key == "") {
		allErrors = append(allErrors, field.Invalid(path.Child("cert"), rsc.Cert, "cert and key must be set together"))
	}
	return allErrors
}

type AWSKMSConfig struct {
	KeyId  string `json:"keyId" yaml:"keyId"`
	Region string `json:"region" yaml:"region"`
}

// SignerConfig selects and configures the identity that signs requests.
type SignerConfig struct {
	IdentityType IdentityType `json:"identityType"`

	// PrivateKey is never logged or serialized.
	PrivateKey   string              `json:"-"`
	AWSKMS       *AWSKMSConfig       `json:"awsKms,omitempty"`
	RemoteSigner *RemoteSignerConfig `json:"remoteSigner,omitempty"`

	Debug bool `json:"debug"`
}

// Validate checks only the settings the selected identity needs.
func (c *SignerConfig) Validate() error {
	var allErrors field.ErrorList
	root := field.NewPath("signer")

	switch c.IdentityType {
	case IdentityTypeLocal:
		if c.PrivateKey == "" {
			allErrors = append(allErrors, field.Required(root.Child("privateKey"), fmt.Sprintf("private key is required (env %s)", EnvPrivateKey)))
		} else {
			key := strings.TrimPrefix(c.PrivateKey, "0x")
			if len(key) != 64 { // 32 bytes
				// do not echo the value
				allErrors = append(allErrors, field.Invalid(root.Child("privateKey"), "<redacted>",
					fmt.Sprintf("private key must be 32 bytes (64 hex chars), got %d chars", len(key))))
			}
		}
	case IdentityTypeAWSKMS:
		if c.AWSKMS == nil || c.AWSKMS.KeyId == "" {
			allErrors = append(allErrors, field.Required(root.Child("awsKms", "keyId"), "kms key id is required"))
		}
	case IdentityTypeWeb3Signer:
		if c.RemoteSigner == nil {
			allErrors = append(allErrors, field.Required(root.Child("remoteSigner"), "remote signer config is required"))
		} else {
			allErrors = append(allErrors, c.RemoteSigner.validate(root.Child("remoteSigner"))...)
		}
	default:
		allErrors = append(allErrors, field.NotSupported(root.Child("identityType"), c.IdentityType, []string{
			IdentityTypeLocal.String(), IdentityTypeAWSKMS.String(), IdentityTypeWeb3Signer.String(),
		}))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

const (
	DefaultPort      = 8080
	DefaultRateLimit = 10.0
	DefaultRateBurst = 20
)

// ServerConfig configures the HTTP signing gateway.
type ServerConfig struct {
	Port      int     `json:"port"`
	RateLimit float64 `json:"rateLimit"` // requests per second, 0 disables limiting
	RateBurst int     `json:"rateBurst"`
}

func (sc *ServerConfig) Validate() error {
	var allErrors field.ErrorList
	root := field.NewPath("server")

	if sc.Port < 1 || sc.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(root.Child("port"), sc.Port, "port must be between 1-65535"))
	}
	if sc.RateLimit < 0 {
		allErrors = append(allErrors, field.Invalid(root.Child("rateLimit"), sc.RateLimit, "must not be negative"))
	}
	if sc.RateLimit > 0 && sc.RateBurst < 1 {
		allErrors = append(allErrors, field.Invalid(root.Child("rateBurst"), sc.RateBurst, "must be at least 1 when rate limiting"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}
