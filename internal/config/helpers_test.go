package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvWithDefault(t *testing.T) {
	result := getEnvWithDefault("TEST_ENV_VAR", "default")
	assert.Equal(t, "default", result)

	t.Setenv("TEST_ENV_VAR", "custom")
	result = getEnvWithDefault("TEST_ENV_VAR", "default")
	assert.Equal(t, "custom", result)
}

func TestGetEnvAsIntWithDefault(t *testing.T) {
	result := getEnvAsIntWithDefault("TEST_INT", 42)
	assert.Equal(t, 42, result)

	t.Setenv("TEST_INT", "100")
	result = getEnvAsIntWithDefault("TEST_INT", 42)
	assert.Equal(t, 100, result)

	t.Setenv("TEST_INT", "invalid")
	result = getEnvAsIntWithDefault("TEST_INT", 42)
	assert.Equal(t, 42, result)
}

func TestGetEnvAsInt64WithDefault(t *testing.T) {
	result := getEnvAsInt64WithDefault("TEST_INT64", 42)
	assert.Equal(t, int64(42), result)

	t.Setenv("TEST_INT64", "100")
	result = getEnvAsInt64WithDefault("TEST_INT64", 42)
	assert.Equal(t, int64(100), result)

	t.Setenv("TEST_INT64", "invalid")
	result = getEnvAsInt64WithDefault("TEST_INT64", 42)
	assert.Equal(t, int64(42), result)
}

func TestGetEnvAsBoolWithDefault(t *testing.T) {
	result := getEnvAsBoolWithDefault("TEST_BOOL", true)
	assert.True(t, result)

	testCases := map[string]bool{
		"true":  true,
		"True":  true,
		"1":     true,
		"on":    true,
		"false": false,
		"False": false,
		"0":     false,
		"off":   false,
	}

	for input, expected := range testCases {
		t.Setenv("TEST_BOOL", input)
		result = getEnvAsBoolWithDefault("TEST_BOOL", !expected)
		assert.Equal(t, expected, result, input)
	}

	t.Setenv("TEST_BOOL", "invalid")
	result = getEnvAsBoolWithDefault("TEST_BOOL", true)
	assert.True(t, result)
}

func TestGetEnvAsDurationWithDefault(t *testing.T) {
	defaultDuration := 5 * time.Minute

	result := getEnvAsDurationWithDefault("TEST_DURATION", defaultDuration)
	assert.Equal(t, defaultDuration, result)

	t.Setenv("TEST_DURATION", "10m")
	result = getEnvAsDurationWithDefault("TEST_DURATION", defaultDuration)
	assert.Equal(t, 10*time.Minute, result)

	t.Setenv("TEST_DURATION", "invalid")
	result = getEnvAsDurationWithDefault("TEST_DURATION", defaultDuration)
	assert.Equal(t, defaultDuration, result)
}

func TestGetEnvAsListWithDefault(t *testing.T) {
	defaults := []string{"a", "b"}

	assert.Equal(t, defaults, getEnvAsListWithDefault("TEST_LIST", defaults))

	t.Setenv("TEST_LIST", " x ,y,,z ")
	assert.Equal(t, []string{"x", "y", "z"}, getEnvAsListWithDefault("TEST_LIST", defaults))

	t.Setenv("TEST_LIST", " , ")
	assert.Equal(t, defaults, getEnvAsListWithDefault("TEST_LIST", defaults))
}
