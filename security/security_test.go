package security_test

import (
	"testing"

	"github.com/nasermirzaei89/marginalia/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasherVerify(t *testing.T) {
	t.Parallel()

	hasher := security.NewHasher([]byte("test-secret"))

	options := "ip"
	photoOptions := "pa"
	ratingOptions := "scale:1-10|Quality|Value"
	target := "events.event:5157"

	digest := hasher.Compute(options, photoOptions, ratingOptions, target)

	assert.True(t, hasher.Verify(digest, options, photoOptions, ratingOptions, target))

	t.Run("tampered fields", func(t *testing.T) {
		t.Parallel()

		assert.False(t, hasher.Verify(digest, "ip,pr", photoOptions, ratingOptions, target))
		assert.False(t, hasher.Verify(digest, options, "pr", ratingOptions, target))
		assert.False(t, hasher.Verify(digest, options, photoOptions, "scale:1-5|Quality", target))
		assert.False(t, hasher.Verify(digest, options, photoOptions, ratingOptions, "events.event:5158"))
	})

	t.Run("tampered digest", func(t *testing.T) {
		t.Parallel()

		flipped := []byte(digest)
		if flipped[0] == 'a' {
			flipped[0] = 'b'
		} else {
			flipped[0] = 'a'
		}

		assert.False(t, hasher.Verify(string(flipped), options, photoOptions, ratingOptions, target))
	})

	t.Run("different secret", func(t *testing.T) {
		t.Parallel()

		other := security.NewHasher([]byte("other-secret"))
		assert.False(t, other.Verify(digest, options, photoOptions, ratingOptions, target))
	})
}

func TestParseRatingOptions(t *testing.T) {
	t.Parallel()

	t.Run("valid spec", func(t *testing.T) {
		t.Parallel()

		parsed, err := security.ParseRatingOptions("scale:1-10|First_category|Second_category")
		require.NoError(t, err)

		assert.Equal(t, 1, parsed.Low)
		assert.Equal(t, 10, parsed.High)
		assert.Equal(t, []string{"First category", "Second category"}, parsed.Labels)

		assert.True(t, parsed.Contains(1))
		assert.True(t, parsed.Contains(10))
		assert.False(t, parsed.Contains(0))
		assert.False(t, parsed.Contains(11))
	})

	t.Run("single label", func(t *testing.T) {
		t.Parallel()

		parsed, err := security.ParseRatingOptions("scale:0-5|Overall")
		require.NoError(t, err)

		assert.Equal(t, 0, parsed.Low)
		assert.Equal(t, 5, parsed.High)
		assert.Equal(t, []string{"Overall"}, parsed.Labels)
	})

	t.Run("malformed specs", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name string
			spec string
		}{
			{name: "empty", spec: ""},
			{name: "no labels", spec: "scale:1-10"},
			{name: "no scale prefix", spec: "1-10|Quality"},
			{name: "missing range separator", spec: "scale:110|Quality"},
			{name: "non-integer low", spec: "scale:a-10|Quality"},
			{name: "non-integer high", spec: "scale:1-b|Quality"},
			{name: "inverted range", spec: "scale:10-1|Quality"},
		}

		for _, tt := range tests {
			tt := tt
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				_, err := security.ParseRatingOptions(tt.spec)
				require.Error(t, err)

				specErr := security.InvalidRatingSpecError{}
				require.ErrorAs(t, err, &specErr)
				assert.Equal(t, tt.spec, specErr.Spec)
			})
		}
	})
}
