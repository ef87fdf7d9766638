// Package push delivers Web Push notifications (RFC 8030) authenticated with
// VAPID (RFC 8292) and encrypted with aes128gcm (RFC 8291).
package push

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VAPIDKeys is the application server key pair announced to browsers.
type VAPIDKeys struct {
	private *ecdsa.PrivateKey
}

// GenerateVAPIDKeys creates a fresh P-256 key pair.
func GenerateVAPIDKeys() (*VAPIDKeys, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &VAPIDKeys{private: priv}, nil
}

// ParseVAPIDKeys decodes a base64url private scalar and checks it against the
// announced public key when one is given.
func ParseVAPIDKeys(publicKey, privateKey string) (*VAPIDKeys, error) {
	raw, err := decodeBase64(privateKey)
	if err != nil {
		return nil, fmt.Errorf("decode vapid private key: %w", err)
	}
	scalar, err := ecdh.P256().NewPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse vapid private key: %w", err)
	}
	point := scalar.PublicKey().Bytes()
	keys := &VAPIDKeys{private: &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(point[1:33]),
			Y:     new(big.Int).SetBytes(point[33:]),
		},
		D: new(big.Int).SetBytes(raw),
	}}
	if publicKey != "" {
		announced, err := keys.PublicKey()
		if err != nil {
			return nil, err
		}
		if announced != publicKey {
			return nil, errors.New("vapid public key does not match private key")
		}
	}
	return keys, nil
}

// PublicKey returns the uncompressed public point, base64url encoded without padding.
func (k *VAPIDKeys) PublicKey() (string, error) {
	pub, err := k.private.PublicKey.ECDH()
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(pub.Bytes()), nil
}

// PrivateKey returns the private scalar, base64url encoded without padding.
func (k *VAPIDKeys) PrivateKey() (string, error) {
	priv, err := k.private.ECDH()
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(priv.Bytes()), nil
}

// authorization builds the `vapid t=..., k=...` header value for a push endpoint.
func (k *VAPIDKeys) authorization(endpoint, subject string, now time.Time) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("endpoint %q is not absolute", endpoint)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"aud": u.Scheme + "://" + u.Host,
		"exp": now.Add(12 * time.Hour).Unix(),
		"sub": subject,
	})
	signed, err := token.SignedString(k.private)
	if err != nil {
		return "", fmt.Errorf("sign vapid token: %w", err)
	}
	pub, err := k.PublicKey()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("vapid t=%s, k=%s", signed, pub), nil
}

// decodeBase64 accepts both padded and unpadded, standard and URL alphabets,
// since browsers and key generators disagree.
func decodeBase64(value string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.StdEncoding,
	} {
		if raw, err := enc.DecodeString(value); err == nil {
			return raw, nil
		}
	}
	return nil, errors.New("invalid base64 value")
}
