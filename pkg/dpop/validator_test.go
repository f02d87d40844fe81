package dpop

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

const testURI = "https://pod.example/notes/a.ttl"

func TestValidateProof_Valid(t *testing.T) {
	t.Log("Testing a freshly generated proof validates")

	key := mustKey(t)
	proof, _ := GenerateProof(key, "PUT", testURI)

	v := NewValidator(DefaultValidatorConfig())
	result, err := v.ValidateProof(proof, "PUT", testURI+"?ignored=1")
	if err != nil {
		t.Fatalf("ValidateProof() error = %v", err)
	}

	tp, _ := key.Thumbprint()
	if result.Thumbprint != tp {
		t.Errorf("thumbprint = %s, want %s", result.Thumbprint, tp)
	}
	if result.Claims.HTM != "PUT" || result.Claims.HTU != testURI {
		t.Errorf("unexpected claims: %+v", result.Claims)
	}
}

func TestValidateProof_Rejections(t *testing.T) {
	key := mustKey(t)
	v := NewValidator(DefaultValidatorConfig())
	good, _ := GenerateProof(key, "PUT", testURI)

	tests := []struct {
		name     string
		proof    string
		method   string
		uri      string
		wantCode string
	}{
		{"empty", "", "PUT", testURI, ErrCodeMissingProof},
		{"two parts", "a.b", "PUT", testURI, ErrCodeInvalidProof},
		{"empty part", "a..c", "PUT", testURI, ErrCodeInvalidProof},
		{"oversized", strings.Repeat("a", maxProofSize) + ".b.c", "PUT", testURI, ErrCodeInvalidProof},
		{"method mismatch", good, "DELETE", testURI, ErrCodeMethodMismatch},
		{"uri mismatch", good, "PUT", "https://pod.example/notes/b.ttl", ErrCodeURIMismatch},
		{"tampered payload", tamperPayload(t, good), "PUT", testURI, ErrCodeInvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.ValidateProof(tt.proof, tt.method, tt.uri)
			if err == nil {
				t.Fatal("expected error")
			}
			if code := ErrorCode(err); code != tt.wantCode {
				t.Errorf("code = %q, want %q (err: %v)", code, tt.wantCode, err)
			}
		})
	}
}

func TestValidateProof_HeaderChecks(t *testing.T) {
	key := mustKey(t)
	v := NewValidator(DefaultValidatorConfig())
	good, _ := GenerateProof(key, "GET", testURI)

	tests := []struct {
		name   string
		mutate func(h map[string]any)
	}{
		{"wrong typ", func(h map[string]any) { h["typ"] = "JWT" }},
		{"alg none", func(h map[string]any) { h["alg"] = "none" }},
		{"alg EdDSA", func(h map[string]any) { h["alg"] = "EdDSA" }},
		{"no jwk", func(h map[string]any) { delete(h, "jwk") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proof := rewriteHeader(t, good, tt.mutate)
			_, err := v.ValidateProof(proof, "GET", testURI)
			if ErrorCode(err) != ErrCodeInvalidProof {
				t.Errorf("expected invalid_proof, got %v", err)
			}
		})
	}
}

func TestValidateProof_SwappedJWK(t *testing.T) {
	t.Log("Testing a proof whose header jwk is replaced by another key fails signature check")

	key := mustKey(t)
	attacker := mustKey(t)
	good, _ := GenerateProof(key, "GET", testURI)

	swapped := rewriteHeader(t, good, func(h map[string]any) {
		h["jwk"] = attacker.PublicJWK
	})

	_, err := NewValidator(DefaultValidatorConfig()).ValidateProof(swapped, "GET", testURI)
	if ErrorCode(err) != ErrCodeInvalidSignature {
		t.Errorf("expected invalid_signature, got %v", err)
	}
}

func TestValidateProof_IATWindow(t *testing.T) {
	key := mustKey(t)
	proof, _ := GenerateProof(key, "GET", testURI)

	past := DefaultValidatorConfig()
	past.Now = func() time.Time { return time.Now().Add(5 * time.Minute) }
	if _, err := NewValidator(past).ValidateProof(proof, "GET", testURI); ErrorCode(err) != ErrCodeInvalidIAT {
		t.Errorf("stale proof: expected invalid_iat, got %v", err)
	}

	future := DefaultValidatorConfig()
	future.Now = func() time.Time { return time.Now().Add(-5 * time.Minute) }
	if _, err := NewValidator(future).ValidateProof(proof, "GET", testURI); ErrorCode(err) != ErrCodeInvalidIAT {
		t.Errorf("future proof: expected invalid_iat, got %v", err)
	}
}

// rewriteHeader re-encodes the proof header after mutation, keeping the
// original payload and signature.
func rewriteHeader(t *testing.T, proof string, mutate func(map[string]any)) string {
	t.Helper()
	parts := strings.Split(proof, ".")
	header, _, _, err := ParseProof(proof)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	mutate(header)
	raw, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw) + "." + parts[1] + "." + parts[2]
}

func tamperPayload(t *testing.T, proof string) string {
	t.Helper()
	parts := strings.Split(proof, ".")
	_, payload, _, err := ParseProof(proof)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	payload["jti"] = "forged"
	raw, _ := json.Marshal(payload)
	return parts[0] + "." + base64.RawURLEncoding.EncodeToString(raw) + "." + parts[2]
}
