package password_test

import (
	"strings"
	"testing"

	"github.com/fenuasim/portal/internal/auth/password"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyRoundTrip(t *testing.T) {
	encoded, err := password.Hash("correct-horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	require.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$"))
	require.True(t, password.Verify("correct-horse", encoded))
	require.False(t, password.Verify("wrong-horse", encoded))
}

func TestHashSaltsEachCall(t *testing.T) {
	first, err := password.Hash("correct-horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := password.Hash("correct-horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	require.NotEqual(t, first, second)
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	cases := []string{
		"",
		"plaintext",
		"$argon2id$v=19$m=65536,t=1,p=4$salt",
		"$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=bad,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=1,p=4$!!!$aGFzaA",
	}
	for _, encoded := range cases {
		require.False(t, password.Verify("correct-horse", encoded), "hash %q", encoded)
	}
}
