package pkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateConditionEmpty(t *testing.T) {
	enabled, err := EvaluateCondition("", nil)
	require.NoError(t, err)
	assert.True(t, enabled)

	enabled, err = EvaluateCondition("   ", Flags{})
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestEvaluateConditionFlag(t *testing.T) {
	enabled, err := EvaluateCondition("enable_ci", Flags{"enable_ci": true})
	require.NoError(t, err)
	assert.True(t, enabled)

	enabled, err = EvaluateCondition("enable_ci", Flags{"enable_ci": false})
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestEvaluateConditionExpression(t *testing.T) {
	flags := Flags{"enable_ci": true, "branch": "main"}

	enabled, err := EvaluateCondition("enable_ci && branch == 'main'", flags)
	require.NoError(t, err)
	assert.True(t, enabled)

	enabled, err = EvaluateCondition("enable_ci && branch == 'develop'", flags)
	require.NoError(t, err)
	assert.False(t, enabled)

	enabled, err = EvaluateCondition("!enable_ci || branch == 'main'", flags)
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestEvaluateConditionUnknownFlagDefaultsFalse(t *testing.T) {
	enabled, err := EvaluateCondition("enable_nightly", Flags{"enable_ci": true})
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestEvaluateConditionMalformed(t *testing.T) {
	_, err := EvaluateCondition("enable_ci &&", Flags{"enable_ci": true})
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestEvaluateConditionNotBoolean(t *testing.T) {
	_, err := EvaluateCondition("branch", Flags{"branch": "main"})
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestValidateCondition(t *testing.T) {
	require.NoError(t, ValidateCondition(""))
	require.NoError(t, ValidateCondition("enable_ci && branch == 'main'"))
	require.Error(t, ValidateCondition("enable_ci &&"))
}

func TestMergeFlags(t *testing.T) {
	base := Flags{"enable_ci": true, "branch": "main"}

	merged := MergeFlags(base, map[string]string{
		"enable_ci":      "false",
		"enable_nightly": "true",
		"channel":        "beta",
	})

	assert.Equal(t, false, merged["enable_ci"])
	assert.Equal(t, true, merged["enable_nightly"])
	assert.Equal(t, "beta", merged["channel"])
	assert.Equal(t, "main", merged["branch"])

	// the base flags are untouched
	assert.Equal(t, true, base["enable_ci"])
}

func TestMergeFlagsEmptyOverrideMeansUnset(t *testing.T) {
	base := Flags{"enable_ci": true}

	merged := MergeFlags(base, map[string]string{
		"enable_ci":      "",
		"enable_nightly": "  ",
	})

	assert.Equal(t, true, merged["enable_ci"])
	_, fnd := merged["enable_nightly"]
	assert.False(t, fnd)

	// an empty override must not break boolean conditions on the flag
	enabled, err := EvaluateCondition("enable_ci", merged)
	require.NoError(t, err)
	assert.True(t, enabled)

	enabled, err = EvaluateCondition("enable_nightly", merged)
	require.NoError(t, err)
	assert.False(t, enabled)
}
