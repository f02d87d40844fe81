package dpop

import (
	"strings"
	"time"
)

// maxProofSize bounds the compact proof before any decoding happens.
const maxProofSize = 8 << 10

// ValidatorConfig sets the acceptance window for iat.
type ValidatorConfig struct {
	// ClockSkew is how far iat may lie ahead of the local clock.
	ClockSkew time.Duration
	// MaxProofAge is how far iat may lie behind it.
	MaxProofAge time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// DefaultValidatorConfig accepts proofs issued up to a minute ago and up
// to a minute ahead of the local clock.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{ClockSkew: time.Minute, MaxProofAge: time.Minute}
}

// ValidatedProof is what a resource server learns from an accepted proof.
// Thumbprint is compared with the jkt the access token is bound to.
type ValidatedProof struct {
	Claims     Claims
	JWK        JWK
	Thumbprint string
}

// Validator checks self-contained proofs: the verifying key travels in the
// header and only its thumbprint ties it to a token.
type Validator struct {
	cfg ValidatorConfig
}

// NewValidator returns a Validator for cfg. A nil cfg.Now uses time.Now.
func NewValidator(cfg ValidatorConfig) *Validator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Validator{cfg: cfg}
}

// ValidateProof accepts proof for a request with the given method and uri.
// Structure and size are checked first, then the header (typ, a pinned
// ES256 alg, a P-256 jwk), the required claims and the signature. Only a
// proof with a valid signature is compared against the request and the
// clock.
func (v *Validator) ValidateProof(proof, method, uri string) (*ValidatedProof, error) {
	if proof == "" {
		return nil, ErrMissingProof()
	}
	segs := strings.Split(proof, ".")
	switch {
	case len(segs) != 3:
		return nil, ErrInvalidProof("compact JWS needs three segments")
	case segs[0] == "" || segs[1] == "" || segs[2] == "":
		return nil, ErrInvalidProof("compact JWS has an empty segment")
	case len(proof) > maxProofSize:
		return nil, ErrInvalidProof("proof larger than 8KB")
	}

	var h Header
	if err := decodeSegment(segs[0], &h); err != nil {
		return nil, ErrInvalidProof("undecodable header")
	}
	if h.Typ != TypeDPoP {
		return nil, ErrInvalidProof("typ is not dpop+jwt")
	}
	if h.Alg != AlgES256 {
		return nil, ErrInvalidProof("alg is not ES256")
	}
	if h.JWK == nil {
		return nil, ErrInvalidProof("header carries no jwk")
	}
	pub, err := JWKToPublicKey(h.JWK)
	if err != nil {
		return nil, ErrInvalidProof(err.Error())
	}

	var c Claims
	if err := decodeSegment(segs[1], &c); err != nil {
		return nil, ErrInvalidProof("undecodable payload")
	}
	for name, val := range map[string]string{"htm": c.HTM, "htu": c.HTU, "jti": c.JTI} {
		if val == "" {
			return nil, ErrInvalidProof("missing " + name + " claim")
		}
	}

	if !VerifyProof(proof, pub) {
		return nil, ErrInvalidSignature()
	}

	if want := strings.ToUpper(method); c.HTM != want {
		return nil, ErrMethodMismatch(c.HTM, method)
	}
	got, err := NormalizeURI(c.HTU)
	if err != nil {
		return nil, ErrInvalidProof("htu is not an absolute URL")
	}
	want, err := NormalizeURI(uri)
	if err != nil {
		return nil, ErrInvalidProof("request URL is not absolute")
	}
	if got != want {
		return nil, ErrURIMismatch(got, want)
	}

	if err := v.checkIAT(c.IAT); err != nil {
		return nil, err
	}

	jkt, err := Thumbprint(pub)
	if err != nil {
		return nil, ErrInvalidProof("jwk thumbprint: " + err.Error())
	}
	return &ValidatedProof{Claims: c, JWK: *h.JWK, Thumbprint: jkt}, nil
}

func (v *Validator) checkIAT(iat int64) error {
	if iat <= 0 {
		return ErrIATNonPositive()
	}
	now := v.cfg.Now().Unix()
	age, limit := now-iat, int64(v.cfg.MaxProofAge/time.Second)
	if age > limit || iat > now+int64(v.cfg.ClockSkew/time.Second) {
		return ErrInvalidIAT(age, limit)
	}
	return nil
}

var _ ProofValidator = (*Validator)(nil)
