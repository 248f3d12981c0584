package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"errors"
	"fmt"

	jwt "github.com/golang-jwt/jwt/v5"
	jose "gopkg.in/square/go-jose.v2"
)

// Material is an asymmetric signing key pair with its stable key identifier.
// The private half never leaves this type; callers sign through Sign.
type Material struct {
	KeyID     string
	PublicKey crypto.PublicKey

	method  jwt.SigningMethod
	private crypto.PrivateKey
}

// Algorithm returns the JWS algorithm name, e.g. RS256.
func (m *Material) Algorithm() string {
	return m.method.Alg()
}

// SigningMethod returns the jwt signing method matching the key type.
func (m *Material) SigningMethod() jwt.SigningMethod {
	return m.method
}

// Sign stamps the kid header and signs the token with the private key.
func (m *Material) Sign(token *jwt.Token) (string, error) {
	if m == nil || m.private == nil {
		return "", errors.New("signing key not loaded")
	}
	if token.Method.Alg() != m.method.Alg() {
		return "", fmt.Errorf("token method %s does not match key algorithm %s", token.Method.Alg(), m.method.Alg())
	}
	token.Header["kid"] = m.KeyID
	return token.SignedString(m.private)
}

// JWK returns the public half as a JSON Web Key.
func (m *Material) JWK() jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       m.PublicKey,
		KeyID:     m.KeyID,
		Algorithm: m.method.Alg(),
		Use:       "sig",
	}
}

// ParsePrivateKeyPEM parses an RSA (PKCS#1/PKCS#8) or EC (SEC1/PKCS#8) private key.
// keyID may be empty, in which case the RFC 7638 thumbprint of the public key is used.
func ParsePrivateKeyPEM(pemBytes []byte, keyID string) (*Material, error) {
	if len(pemBytes) == 0 {
		return nil, errors.New("empty key material")
	}

	m := &Material{}
	if rsaKey, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes); err == nil {
		if rsaKey.N.BitLen() < 2048 {
			return nil, fmt.Errorf("rsa key too short: %d bits", rsaKey.N.BitLen())
		}
		m.private = rsaKey
		m.PublicKey = &rsaKey.PublicKey
		m.method = jwt.SigningMethodRS256
	} else if ecKey, ecErr := jwt.ParseECPrivateKeyFromPEM(pemBytes); ecErr == nil {
		method, err := ecMethod(ecKey)
		if err != nil {
			return nil, err
		}
		m.private = ecKey
		m.PublicKey = &ecKey.PublicKey
		m.method = method
	} else {
		return nil, fmt.Errorf("parse private key: not an RSA or EC key: %v", ecErr)
	}

	if keyID == "" {
		kid, err := ThumbprintKeyID(m.PublicKey)
		if err != nil {
			return nil, err
		}
		keyID = kid
	}
	m.KeyID = keyID
	return m, nil
}

// ThumbprintKeyID derives a restart-stable key id from the public key (RFC 7638, SHA-256).
func ThumbprintKeyID(pub crypto.PublicKey) (string, error) {
	jwk := jose.JSONWebKey{Key: pub}
	sum, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}

func ecMethod(key *ecdsa.PrivateKey) (jwt.SigningMethod, error) {
	switch key.Curve {
	case elliptic.P256():
		return jwt.SigningMethodES256, nil
	case elliptic.P384():
		return jwt.SigningMethodES384, nil
	default:
		return nil, fmt.Errorf("unsupported curve %s", key.Curve.Params().Name)
	}
}
