package webhook_test

import (
	"encoding/hex"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/confeitaria/pkg/webhook"
)

const testSecret = "whsec_test_secret"

var testPayload = []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestVerifier_AcceptsSignedPayload(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	header, err := webhook.Sign(testSecret, testPayload, now)
	require.NoError(t, err)

	v := webhook.NewVerifier(testSecret, webhook.WithClock(fixedClock(now)))
	assert.NoError(t, v.Verify(testPayload, header))
}

func TestVerifier_RejectsAnyFlippedByte(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	header, err := webhook.Sign(testSecret, testPayload, now)
	require.NoError(t, err)
	v := webhook.NewVerifier(testSecret, webhook.WithClock(fixedClock(now)))

	for i := range testPayload {
		tampered := append([]byte(nil), testPayload...)
		tampered[i] ^= 0x01
		err := v.Verify(tampered, header)
		assert.ErrorIs(t, err, webhook.ErrNoValidSignature, "byte %d", i)
	}
}

func TestVerifier_RejectsWrongSecret(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	header, err := webhook.Sign("other_secret", testPayload, now)
	require.NoError(t, err)

	v := webhook.NewVerifier(testSecret, webhook.WithClock(fixedClock(now)))
	assert.ErrorIs(t, v.Verify(testPayload, header), webhook.ErrNoValidSignature)
}

func TestVerifier_MultipleCandidates(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	good := hex.EncodeToString(webhook.ComputeSignature(testSecret, now.Unix(), testPayload))
	bad := strings.Repeat("ab", 32)

	v := webhook.NewVerifier(testSecret, webhook.WithClock(fixedClock(now)))

	t.Run("valid candidate last", func(t *testing.T) {
		t.Parallel()
		header := fmt.Sprintf("t=%d,v1=%s,v1=%s", now.Unix(), bad, good)
		assert.NoError(t, v.Verify(testPayload, header))
	})

	t.Run("unknown schemes ignored", func(t *testing.T) {
		t.Parallel()
		header := fmt.Sprintf("t=%d,v0=%s,v1=%s", now.Unix(), bad, good)
		assert.NoError(t, v.Verify(testPayload, header))
	})

	t.Run("undecodable candidate skipped", func(t *testing.T) {
		t.Parallel()
		header := fmt.Sprintf("t=%d,v1=zz,v1=%s", now.Unix(), good)
		assert.NoError(t, v.Verify(testPayload, header))
	})

	t.Run("no candidate matches", func(t *testing.T) {
		t.Parallel()
		header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), bad)
		assert.ErrorIs(t, v.Verify(testPayload, header), webhook.ErrNoValidSignature)
	})
}

func TestVerifier_MissingSecret(t *testing.T) {
	t.Parallel()

	v := webhook.NewVerifier("")
	assert.False(t, v.Configured())

	err := v.Verify(testPayload, "t=1,v1=00")
	assert.ErrorIs(t, err, webhook.ErrMissingSecret)
	assert.False(t, webhook.IsSignatureError(err))
}

func TestVerifier_HeaderErrors(t *testing.T) {
	t.Parallel()

	v := webhook.NewVerifier(testSecret, webhook.WithTolerance(0))

	tests := []struct {
		name   string
		header string
		want   error
	}{
		{name: "empty", header: "", want: webhook.ErrMissingHeader},
		{name: "whitespace", header: "   ", want: webhook.ErrMissingHeader},
		{name: "no timestamp", header: "v1=abcd", want: webhook.ErrMalformedHeader},
		{name: "bad timestamp", header: "t=abc,v1=abcd", want: webhook.ErrMalformedHeader},
		{name: "no signature", header: "t=123", want: webhook.ErrMalformedHeader},
		{name: "not key value", header: "garbage", want: webhook.ErrMalformedHeader},
		{name: "only undecodable signatures", header: "t=123,v1=xyz", want: webhook.ErrMalformedHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := v.Verify(testPayload, tt.header)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, webhook.IsSignatureError(err))
		})
	}
}

func TestVerifier_Tolerance(t *testing.T) {
	t.Parallel()

	signedAt := time.Unix(1_700_000_000, 0)
	header, err := webhook.Sign(testSecret, testPayload, signedAt)
	require.NoError(t, err)

	tests := []struct {
		name      string
		now       time.Time
		tolerance time.Duration
		wantErr   error
	}{
		{name: "within window", now: signedAt.Add(4 * time.Minute), tolerance: 5 * time.Minute},
		{name: "too old", now: signedAt.Add(6 * time.Minute), tolerance: 5 * time.Minute, wantErr: webhook.ErrTimestampOutOfWindow},
		{name: "too far in future", now: signedAt.Add(-6 * time.Minute), tolerance: 5 * time.Minute, wantErr: webhook.ErrTimestampOutOfWindow},
		{name: "check disabled", now: signedAt.Add(24 * time.Hour), tolerance: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := webhook.NewVerifier(testSecret, webhook.WithTolerance(tt.tolerance), webhook.WithClock(fixedClock(tt.now)))
			err := v.Verify(testPayload, header)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestVerifier_EmptyPayload(t *testing.T) {
	t.Parallel()

	v := webhook.NewVerifier(testSecret, webhook.WithTolerance(0))
	err := v.Verify(nil, "t=1,v1=00")
	assert.ErrorIs(t, err, webhook.ErrInvalidPayload)
}

func TestSign(t *testing.T) {
	t.Parallel()

	at := time.Unix(1_700_000_000, 0)

	header, err := webhook.Sign(testSecret, testPayload, at)
	require.NoError(t, err)

	parsed, err := webhook.ParseSignatureHeader(header)
	require.NoError(t, err)
	assert.Equal(t, at.Unix(), parsed.Timestamp)
	require.Len(t, parsed.Signatures, 1)
	assert.Equal(t, webhook.ComputeSignature(testSecret, at.Unix(), testPayload), parsed.Signatures[0])

	_, err = webhook.Sign("", testPayload, at)
	assert.ErrorIs(t, err, webhook.ErrMissingSecret)

	_, err = webhook.Sign(testSecret, nil, at)
	assert.ErrorIs(t, err, webhook.ErrInvalidPayload)
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	header, err := webhook.Sign(testSecret, testPayload, time.Now())
	require.NoError(t, err)

	assert.NoError(t, webhook.VerifySignature(testSecret, testPayload, header, webhook.DefaultTolerance))
	assert.ErrorIs(t, webhook.VerifySignature("", testPayload, header, webhook.DefaultTolerance), webhook.ErrMissingSecret)
}
