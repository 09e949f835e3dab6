package ingestion

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureVerifier validates webhook authenticity. The relay signs each
// delivery with HMAC-SHA256(signingKey, timestamp + token) and sends the
// hex digest alongside the two inputs. Enforcement is environment-gated:
// disabled outside production so local deliveries work without a relay.
type SignatureVerifier struct {
	signingKey string
	enforce    bool
}

func NewSignatureVerifier(signingKey string, enforce bool) *SignatureVerifier {
	return &SignatureVerifier{signingKey: signingKey, enforce: enforce}
}

// Verify checks the signature params. It returns an AuthError with
// MissingParams set when any of the three fields is absent, a plain
// AuthError when the signature does not match, and nil when verification
// passes or enforcement is disabled. It never panics on malformed input.
func (v *SignatureVerifier) Verify(params SignatureParams) error {
	if !v.enforce {
		return nil
	}

	if params.Token == "" || params.Timestamp == "" || params.Signature == "" {
		return &AuthError{MissingParams: true}
	}

	mac := hmac.New(sha256.New, []byte(v.signingKey))
	mac.Write([]byte(params.Timestamp + params.Token))
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(params.Signature)
	if err != nil {
		return &AuthError{}
	}
	if !hmac.Equal(provided, expected) {
		return &AuthError{}
	}
	return nil
}
