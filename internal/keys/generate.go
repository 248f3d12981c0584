package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"
)

// GeneratePrivateKeyPEM creates a new PKCS#8 private key for the given JWS algorithm.
// Supported: RS256 (bits >= 2048, default 3072), ES256, ES384.
func GeneratePrivateKeyPEM(alg string, bits int) ([]byte, error) {
	var key any
	var err error

	switch strings.ToUpper(alg) {
	case "RS256":
		if bits == 0 {
			bits = 3072
		}
		if bits < 2048 {
			return nil, fmt.Errorf("rsa key size %d below 2048", bits)
		}
		key, err = rsa.GenerateKey(rand.Reader, bits)
	case "ES256":
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case "ES384":
		key, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", alg)
	}
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("encode key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}
