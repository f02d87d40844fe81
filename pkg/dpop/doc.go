// Package dpop implements DPoP (Demonstrating Proof of Possession) proofs
// per RFC 9449 for Solid Pod access.
//
// DPoP binds an access token to a client-held key pair. The Pod only honours
// a token when every request carries a fresh proof signed by the same key
// that was presented at the token endpoint. Keys are EC P-256 and proofs are
// signed with ES256.
//
// # Token Structure
//
// A DPoP proof is a JWT containing:
//   - jti: Unique token identifier
//   - htm: HTTP method (uppercase)
//   - htu: HTTP URI being accessed (scheme + host + path)
//   - iat: Issued-at timestamp
//   - jwk: Public key in JWK format (header)
//
// # Usage
//
// Create proofs for requests:
//
//	key, err := dpop.GenerateKeyPair()
//	proof, err := dpop.NewGenerator(key).Generate("PUT", "https://pod.example/notes/a.ttl")
//
// Verify incoming proofs on a resource server:
//
//	v := dpop.NewValidator(dpop.DefaultValidatorConfig())
//	result, err := v.ValidateProof(proof, "PUT", "https://pod.example/notes/a.ttl")
package dpop
