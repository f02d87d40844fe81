package dpop

// Proofs are ES256 over P-256 only. alg is checked against AlgES256 but
// never used to pick the verification algorithm.
const (
	TypeDPoP  = "dpop+jwt"
	AlgES256  = "ES256"
	KeyTypeEC = "EC"
	CurveP256 = "P-256"
	UseSig    = "sig"
)

// Header is the protected header of a proof.
type Header struct {
	Typ string `json:"typ"`
	Alg string `json:"alg"`
	JWK *JWK   `json:"jwk,omitempty"`
}

// Claims ties a proof to one request: a random jti, the method (htm), the
// normalized URL (htu) and iat in Unix seconds.
type Claims struct {
	JTI string `json:"jti"`
	HTM string `json:"htm"`
	HTU string `json:"htu"`
	IAT int64  `json:"iat"`
}

// JWK is the public half of a P-256 key. X and Y are unpadded base64url
// 32-byte big-endian coordinates.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
	Alg string `json:"alg,omitempty"`
	Use string `json:"use,omitempty"`
}
