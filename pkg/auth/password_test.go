package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	h := NewHasher(DefaultHashParams())

	digest, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(digest, "$argon2id$"))

	ok, err := h.Verify("correct horse battery staple", digest)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("correct horse battery stapl", digest)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashRejectsBadInput(t *testing.T) {
	h := NewHasher(DefaultHashParams())

	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{
			name:     "empty password",
			password: "",
			wantErr:  ErrEmptyPassword,
		},
		{
			name:     "password over 64 bytes",
			password: strings.Repeat("a", MaxPasswordLength+1),
			wantErr:  ErrPasswordTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Hash(tt.password)
			assert.ErrorIs(t, err, tt.wantErr)

			_, err = h.Verify(tt.password, "$argon2id$v=19$m=19456,t=2,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestHashAtMaxLength(t *testing.T) {
	h := NewHasher(DefaultHashParams())

	password := strings.Repeat("p", MaxPasswordLength)
	digest, err := h.Hash(password)
	require.NoError(t, err)

	ok, err := h.Verify(password, digest)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHashSaltsDiffer(t *testing.T) {
	h := NewHasher(DefaultHashParams())

	first, err := h.Hash("same password")
	require.NoError(t, err)
	second, err := h.Hash("same password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestVerifyMalformedDigest(t *testing.T) {
	h := NewHasher(DefaultHashParams())

	tests := []struct {
		name   string
		digest string
	}{
		{name: "empty", digest: ""},
		{name: "not a PHC string", digest: "plaintext"},
		{name: "wrong algorithm", digest: "$bcrypt$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{name: "missing sections", digest: "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA"},
		{name: "bad version", digest: "$argon2id$v=18$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{name: "bad params", digest: "$argon2id$v=19$m=0,t=0,p=0$c2FsdA$aGFzaA"},
		{name: "bad salt encoding", digest: "$argon2id$v=19$m=19456,t=2,p=1$!!!$aGFzaA"},
		{name: "bad key encoding", digest: "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$!!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Verify("whatever", tt.digest)
			assert.ErrorIs(t, err, ErrMalformedDigest)
		})
	}
}

func TestVerifyUsesDigestParams(t *testing.T) {
	// A digest hashed with one parameter set must verify under a hasher
	// configured with another, because the digest is self-describing.
	heavy := NewHasher(HashParams{Memory: 32 * 1024, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32})
	light := NewHasher(DefaultHashParams())

	digest, err := heavy.Hash("portable digest")
	require.NoError(t, err)

	ok, err := light.Verify("portable digest", digest)
	require.NoError(t, err)
	assert.True(t, ok)
}
