package youtube

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateVideoID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"bare id", "dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"watch url", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"short url", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"shorts url", "https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"too short", "abc", "", false},
		{"garbage url", "https://example.com/watch?v=dQw4w9WgXcQ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateVideoID(tt.input)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateChannel(t *testing.T) {
	id := "UC" + strings.Repeat("a", 22)

	ref, err := ValidateChannel(id)
	require.NoError(t, err)
	assert.Equal(t, id, ref.ID)
	assert.Empty(t, ref.Handle)

	ref, err = ValidateChannel("@SomeCreator")
	require.NoError(t, err)
	assert.Equal(t, "@SomeCreator", ref.Handle)

	ref, err = ValidateChannel("https://www.youtube.com/channel/" + id)
	require.NoError(t, err)
	assert.Equal(t, id, ref.ID)

	ref, err = ValidateChannel("https://www.youtube.com/@SomeCreator/videos")
	require.NoError(t, err)
	assert.Equal(t, "@SomeCreator", ref.Handle)

	for _, bad := range []string{"", "UCshort", "@x", "not a channel"} {
		_, err := ValidateChannel(bad)
		assert.ErrorIs(t, err, ErrInvalidInput, "input %q", bad)
	}
}

func TestValidatePlaylistID(t *testing.T) {
	good := "PL" + strings.Repeat("b", 32)
	got, err := ValidatePlaylistID(" " + good + " ")
	require.NoError(t, err)
	assert.Equal(t, good, got)

	for _, bad := range []string{"", "PLshort", "XX" + strings.Repeat("b", 32)} {
		_, err := ValidatePlaylistID(bad)
		assert.ErrorIs(t, err, ErrInvalidInput, "input %q", bad)
	}
}

func TestValidateLanguage(t *testing.T) {
	got, err := ValidateLanguage("EN")
	require.NoError(t, err)
	assert.Equal(t, "en", got)

	got, err = ValidateLanguage("pt-BR")
	require.NoError(t, err)
	assert.Equal(t, "pt-BR", got)

	got, err = ValidateLanguage("")
	require.NoError(t, err)
	assert.Empty(t, got)

	for _, bad := range []string{"e", "english", "12", "en_US"} {
		_, err := ValidateLanguage(bad)
		assert.ErrorIs(t, err, ErrInvalidInput, "input %q", bad)
	}
}

func TestValidateQuery(t *testing.T) {
	got, err := ValidateQuery("  go concurrency  ")
	require.NoError(t, err)
	assert.Equal(t, "go concurrency", got)

	_, err = ValidateQuery("   ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = ValidateQuery(strings.Repeat("q", 501))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestValidateMaxResults(t *testing.T) {
	got, err := ValidateMaxResults(0)
	require.NoError(t, err)
	assert.EqualValues(t, DefaultMaxResults, got)

	got, err = ValidateMaxResults(25)
	require.NoError(t, err)
	assert.EqualValues(t, 25, got)

	got, err = ValidateMaxResults(500)
	require.NoError(t, err)
	assert.EqualValues(t, MaxResultsCap, got)

	_, err = ValidateMaxResults(-1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestValidateOrder(t *testing.T) {
	got, err := ValidateOrder("")
	require.NoError(t, err)
	assert.Equal(t, "relevance", got)

	got, err = ValidateOrder("viewCount")
	require.NoError(t, err)
	assert.Equal(t, "viewCount", got)

	_, err = ValidateOrder("popularity")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestValidatePrivacy(t *testing.T) {
	got, err := ValidatePrivacy("")
	require.NoError(t, err)
	assert.Equal(t, "private", got)

	got, err = ValidatePrivacy("unlisted")
	require.NoError(t, err)
	assert.Equal(t, "unlisted", got)

	_, err = ValidatePrivacy("secret")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
