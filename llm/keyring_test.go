package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyRing_IteratesKeysWithinModelBeforeRotatingModel(t *testing.T) {
	kr := NewKeyRing([]string{"model-a", "model-b"}, map[string][]Credential{
		"model-a": {{Key: "a1"}, {Key: "a2"}},
		"model-b": {{Key: "b1"}},
	})

	var seen []string
	for i := 0; i < 4; i++ {
		model, cred, err := kr.Next()
		require.NoError(t, err)
		seen = append(seen, model+":"+cred.Key)
		kr.Advance()
	}

	assert.Equal(t, []string{
		"model-a:a1",
		"model-a:a2",
		"model-b:b1",
		"model-a:a1", // wraps around
	}, seen)
}

func TestKeyRing_SkipsModelsWithNoKeys(t *testing.T) {
	kr := NewKeyRing([]string{"empty", "model-a"}, map[string][]Credential{
		"model-a": {{Key: "a1"}},
	})
	model, cred, err := kr.Next()
	require.NoError(t, err)
	assert.Equal(t, "model-a", model)
	assert.Equal(t, "a1", cred.Key)
}

func TestKeyRing_NoCredentials(t *testing.T) {
	kr := NewKeyRing(nil, nil)
	_, _, err := kr.Next()
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestKeyRing_RotateOnRateLimitAdvances(t *testing.T) {
	kr := NewKeyRing([]string{"model-a"}, map[string][]Credential{
		"model-a": {{Key: "a1"}, {Key: "a2"}},
	})
	_, cred, _ := kr.Next()
	assert.Equal(t, "a1", cred.Key)
	kr.RotateOnRateLimit()
	_, cred, _ = kr.Next()
	assert.Equal(t, "a2", cred.Key)
}
