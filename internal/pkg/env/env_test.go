package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvPrefersLoadedFile(t *testing.T) {
	Env = map[string]string{"CG_TEST_KEY": "from-file"}
	t.Cleanup(func() { Env = nil })
	t.Setenv("CG_TEST_KEY", "from-os")

	assert.Equal(t, "from-file", GetEnv("CG_TEST_KEY", "def"))
	assert.Equal(t, "def", GetEnv("CG_TEST_MISSING", "def"))
}

func TestTypedGetters(t *testing.T) {
	Env = map[string]string{
		"CG_INT":      "7",
		"CG_BAD_INT":  "seven",
		"CG_BOOL":     "true",
		"CG_DURATION": "250ms",
		"CG_BAD_DUR":  "-1s",
	}
	t.Cleanup(func() { Env = nil })

	assert.Equal(t, 7, GetEnvInt("CG_INT", 1))
	assert.Equal(t, 1, GetEnvInt("CG_BAD_INT", 1))
	assert.True(t, GetEnvBool("CG_BOOL", false))
	assert.False(t, GetEnvBool("CG_MISSING_BOOL", false))
	assert.Equal(t, 250*time.Millisecond, GetEnvDuration("CG_DURATION", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("CG_BAD_DUR", time.Second))
}
