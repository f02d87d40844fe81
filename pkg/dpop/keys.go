package dpop

import (
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"

	"github.com/go-jose/go-jose/v4"
)

// coordinateSize is the byte length of a P-256 field element.
const coordinateSize = 32

// KeyPair is an EC P-256 key pair used to sign DPoP proofs.
//
// A KeyPair is bound into exactly one access token at the token endpoint.
// Every later proof sent with that token must be signed by the same pair.
type KeyPair struct {
	PrivateKey *ecdsa.PrivateKey
	PublicJWK  JWK
}

// GenerateKeyPair generates a new P-256 key pair using crypto/rand.
// Never uses math/rand.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate P-256 key pair: %w", err)
	}
	return &KeyPair{
		PrivateKey: priv,
		PublicJWK:  PublicKeyToJWK(&priv.PublicKey),
	}, nil
}

// Public returns the public half of the pair.
func (k *KeyPair) Public() *ecdsa.PublicKey {
	return &k.PrivateKey.PublicKey
}

// JoseJWK returns the public key as a go-jose JSONWebKey, suitable for
// embedding in a proof header.
func (k *KeyPair) JoseJWK() jose.JSONWebKey {
	return PublicKeyToJoseJWK(k.Public())
}

// Thumbprint returns the RFC 7638 SHA-256 thumbprint of the public key,
// base64url encoded. This is the "jkt" a server binds a token to.
func (k *KeyPair) Thumbprint() (string, error) {
	return Thumbprint(k.Public())
}

// PublicKeyToJWK converts a P-256 public key to JWK format.
//
// JWK fields:
//   - kty: "EC"
//   - crv: "P-256"
//   - x, y: base64url 32-byte big-endian coordinates
//   - alg: "ES256"
//   - use: "sig"
func PublicKeyToJWK(pub *ecdsa.PublicKey) JWK {
	x := make([]byte, coordinateSize)
	y := make([]byte, coordinateSize)
	pub.X.FillBytes(x)
	pub.Y.FillBytes(y)
	return JWK{
		Kty: KeyTypeEC,
		Crv: CurveP256,
		X:   base64.RawURLEncoding.EncodeToString(x),
		Y:   base64.RawURLEncoding.EncodeToString(y),
		Alg: AlgES256,
		Use: UseSig,
	}
}

// JWKToPublicKey converts a JWK to a P-256 public key.
//
// Returns an error if:
//   - kty is not "EC" or crv is not "P-256"
//   - x or y is not valid base64url or not 32 bytes
//   - the point is not on the curve
func JWKToPublicKey(jwk *JWK) (*ecdsa.PublicKey, error) {
	if jwk == nil {
		return nil, fmt.Errorf("invalid JWK: missing")
	}
	if jwk.Kty != KeyTypeEC {
		return nil, fmt.Errorf("invalid JWK: kty must be EC, got %q", jwk.Kty)
	}
	if jwk.Crv != CurveP256 {
		return nil, fmt.Errorf("invalid JWK: crv must be P-256, got %q", jwk.Crv)
	}

	x, err := decodeCoordinate("x", jwk.X)
	if err != nil {
		return nil, err
	}
	y, err := decodeCoordinate("y", jwk.Y)
	if err != nil {
		return nil, err
	}

	// crypto/ecdh rejects points that are not on the curve.
	point := make([]byte, 0, 1+2*coordinateSize)
	point = append(point, 0x04)
	point = append(point, x...)
	point = append(point, y...)
	if _, err := ecdh.P256().NewPublicKey(point); err != nil {
		return nil, fmt.Errorf("invalid JWK: point not on P-256")
	}

	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(x),
		Y:     new(big.Int).SetBytes(y),
	}, nil
}

func decodeCoordinate(name, value string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid JWK: failed to decode %s parameter: %w", name, err)
	}
	if len(b) != coordinateSize {
		return nil, fmt.Errorf("invalid JWK: %s parameter has wrong length %d, expected %d", name, len(b), coordinateSize)
	}
	return b, nil
}

// PublicKeyToJoseJWK converts a P-256 public key to a go-jose JSONWebKey.
func PublicKeyToJoseJWK(pub *ecdsa.PublicKey) jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       pub,
		Algorithm: string(jose.ES256),
		Use:       UseSig,
	}
}

// Thumbprint computes the RFC 7638 SHA-256 JWK thumbprint of a public key.
func Thumbprint(pub *ecdsa.PublicKey) (string, error) {
	jwk := jose.JSONWebKey{Key: pub}
	sum, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("compute jwk thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}
