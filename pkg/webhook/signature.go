package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// SignatureHeaderName is the HTTP header carrying the signature.
	SignatureHeaderName = "Stripe-Signature"

	// DefaultTolerance is the maximum accepted distance between the signed
	// timestamp and the verifier's clock.
	DefaultTolerance = 5 * time.Minute

	schemeV1        = "v1"
	timestampKey    = "t"
	headerSeparator = ","
)

// SignatureHeader is the parsed form of "t=<unix>,v1=<hex>[,v1=<hex>...]".
// Keys other than t and v1 are ignored.
type SignatureHeader struct {
	Timestamp  int64
	Signatures [][]byte
}

// ParseSignatureHeader parses a signature header value.
// At least one decodable v1 signature and a numeric timestamp are required.
func ParseSignatureHeader(header string) (SignatureHeader, error) {
	var sh SignatureHeader
	header = strings.TrimSpace(header)
	if header == "" {
		return sh, ErrMissingHeader
	}

	var hasTimestamp bool
	for _, pair := range strings.Split(header, headerSeparator) {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return SignatureHeader{}, fmt.Errorf("%w: %q is not a key=value pair", ErrMalformedHeader, pair)
		}

		switch key {
		case timestampKey:
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return SignatureHeader{}, fmt.Errorf("%w: invalid timestamp", ErrMalformedHeader)
			}
			sh.Timestamp = ts
			hasTimestamp = true
		case schemeV1:
			sig, err := hex.DecodeString(value)
			if err != nil {
				// A single undecodable candidate does not invalidate the others.
				continue
			}
			sh.Signatures = append(sh.Signatures, sig)
		}
	}

	if !hasTimestamp {
		return SignatureHeader{}, fmt.Errorf("%w: timestamp is missing", ErrMalformedHeader)
	}
	if len(sh.Signatures) == 0 {
		return SignatureHeader{}, fmt.Errorf("%w: no %s signature", ErrMalformedHeader, schemeV1)
	}

	return sh, nil
}

// ComputeSignature returns HMAC-SHA256(secret, "<timestamp>.<payload>").
func ComputeSignature(secret string, timestamp int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// Sign builds a signature header value for payload at the given time.
func Sign(secret string, payload []byte, at time.Time) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	if len(payload) == 0 {
		return "", fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}

	ts := at.Unix()
	sig := ComputeSignature(secret, ts, payload)
	return fmt.Sprintf("%s=%d%s%s=%s", timestampKey, ts, headerSeparator, schemeV1, hex.EncodeToString(sig)), nil
}

// Verifier checks inbound webhook signatures against a shared secret.
// Safe for concurrent use.
type Verifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithTolerance sets the replay window. A tolerance <= 0 disables the check.
func WithTolerance(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		v.tolerance = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVerifier creates a verifier. An empty secret is accepted here so that the
// server can start; every Verify call then fails with ErrMissingSecret.
func NewVerifier(secret string, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		secret:    secret,
		tolerance: DefaultTolerance,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Configured reports whether a signing secret is present.
func (v *Verifier) Configured() bool {
	return v != nil && v.secret != ""
}

// Verify authenticates payload using the raw signature header value.
// The payload must be the exact bytes received on the wire.
func (v *Verifier) Verify(payload []byte, header string) error {
	if !v.Configured() {
		return ErrMissingSecret
	}

	sh, err := ParseSignatureHeader(header)
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}

	if v.tolerance > 0 {
		skew := v.now().Sub(time.Unix(sh.Timestamp, 0))
		if skew > v.tolerance || skew < -v.tolerance {
			return fmt.Errorf("%w: skew %s", ErrTimestampOutOfWindow, skew.Truncate(time.Second))
		}
	}

	expected := ComputeSignature(v.secret, sh.Timestamp, payload)
	for _, candidate := range sh.Signatures {
		if hmac.Equal(expected, candidate) {
			return nil
		}
	}

	return ErrNoValidSignature
}

// VerifySignature is a convenience wrapper around a one-off Verifier.
func VerifySignature(secret string, payload []byte, header string, tolerance time.Duration) error {
	return NewVerifier(secret, WithTolerance(tolerance)).Verify(payload, header)
}
