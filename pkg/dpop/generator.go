package dpop

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

// ProofGenerator produces a proof for one request.
type ProofGenerator interface {
	Generate(method, uri string) (string, error)
}

// Generator signs proofs with a single key. Safe for concurrent use.
type Generator struct {
	key *KeyPair
	now func() time.Time
}

// NewGenerator returns a Generator signing with key.
func NewGenerator(key *KeyPair) *Generator {
	return &Generator{key: key, now: time.Now}
}

// Generate returns a fresh proof for method and uri at the current time.
func (g *Generator) Generate(method, uri string) (string, error) {
	return signProof(g.key, method, uri, g.now())
}

// GenerateProof builds a compact ES256 proof for method and uri.
//
// The protected header is {typ: dpop+jwt, alg: ES256, jwk: <public key>}.
// The payload carries a random jti, the uppercased method as htm, the
// normalized uri as htu and iat in Unix seconds. Two calls with the same
// arguments never produce the same token.
func GenerateProof(key *KeyPair, method, uri string) (string, error) {
	return signProof(key, method, uri, time.Now())
}

func signProof(key *KeyPair, method, uri string, at time.Time) (string, error) {
	if key == nil || key.PrivateKey == nil {
		return "", fmt.Errorf("dpop: proof requested without a key")
	}
	htu, err := NormalizeURI(uri)
	if err != nil {
		return "", fmt.Errorf("dpop: htu: %w", err)
	}

	opts := new(jose.SignerOptions).WithType(TypeDPoP).WithHeader("jwk", key.JoseJWK())
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.ES256, Key: key.PrivateKey}, opts)
	if err != nil {
		return "", fmt.Errorf("dpop: signer: %w", err)
	}

	token, err := jwt.Signed(signer).Claims(Claims{
		JTI: uuid.NewString(),
		HTM: strings.ToUpper(method),
		HTU: htu,
		IAT: at.Unix(),
	}).Serialize()
	if err != nil {
		return "", fmt.Errorf("dpop: sign claims: %w", err)
	}
	return token, nil
}

// SignRequest sets the DPoP header of req. htu comes from req.URL and never
// from the Host header.
func SignRequest(req *http.Request, key *KeyPair) error {
	proof, err := GenerateProof(key, req.Method, req.URL.String())
	if err != nil {
		return err
	}
	req.Header.Set("DPoP", proof)
	return nil
}

var defaultPorts = map[string]string{"http": "80", "https": "443"}

// NormalizeURI reduces an absolute URL to the htu form compared by servers:
// lowercase scheme and host, default port dropped, path kept verbatim (or
// "/" when empty), no query and no fragment.
func NormalizeURI(raw string) (string, error) {
	if raw == "" {
		return "", ErrInvalidProof("empty htu")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if !u.IsAbs() || u.Host == "" {
		return "", ErrInvalidProof("htu must be an absolute URL")
	}

	scheme := strings.ToLower(u.Scheme)
	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")

	host := strings.ToLower(u.Hostname())
	if strings.ContainsRune(host, ':') {
		host = "[" + host + "]"
	}
	b.WriteString(host)
	if port := u.Port(); port != "" && port != defaultPorts[scheme] {
		b.WriteString(":" + port)
	}

	if p := u.EscapedPath(); p != "" {
		b.WriteString(p)
	} else {
		b.WriteByte('/')
	}
	return b.String(), nil
}

// ParseProof splits a compact proof without verifying it. Tests and the
// validator use it to inspect header and claims.
func ParseProof(proof string) (header, payload map[string]any, signature []byte, err error) {
	segs := strings.Split(proof, ".")
	if len(segs) != 3 {
		return nil, nil, nil, fmt.Errorf("dpop: compact JWS has %d segments", len(segs))
	}
	if err := decodeSegment(segs[0], &header); err != nil {
		return nil, nil, nil, fmt.Errorf("dpop: header: %w", err)
	}
	if err := decodeSegment(segs[1], &payload); err != nil {
		return nil, nil, nil, fmt.Errorf("dpop: payload: %w", err)
	}
	if signature, err = base64.RawURLEncoding.DecodeString(segs[2]); err != nil {
		return nil, nil, nil, fmt.Errorf("dpop: signature: %w", err)
	}
	return header, payload, signature, nil
}

func decodeSegment(seg string, v any) error {
	raw, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// VerifyProof checks the ES256 signature (r || s, 64 bytes) of proof
// against pub.
func VerifyProof(proof string, pub *ecdsa.PublicKey) bool {
	if pub == nil {
		return false
	}
	dot := strings.LastIndexByte(proof, '.')
	if dot < 0 || strings.Count(proof, ".") != 2 {
		return false
	}
	sig, err := base64.RawURLEncoding.DecodeString(proof[dot+1:])
	if err != nil || len(sig) != 2*coordinateSize {
		return false
	}
	digest := sha256.Sum256([]byte(proof[:dot]))
	r := new(big.Int).SetBytes(sig[:coordinateSize])
	s := new(big.Int).SetBytes(sig[coordinateSize:])
	return ecdsa.Verify(pub, digest[:], r, s)
}

var _ ProofGenerator = (*Generator)(nil)
