package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSchema(t *testing.T) {
	data, err := GenerateSchema()
	require.NoError(t, err)

	var schema map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &schema))

	assert.Equal(t, "http://json-schema.org/draft-07/schema#", schema["$schema"])
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, true, schema["additionalProperties"], "extensions are top-level keys")
	assert.Contains(t, schema["required"], "tracker")

	props := schema["properties"].(map[string]interface{})
	for _, key := range []string{"tracker", "git", "upload", "storage", "server"} {
		assert.Contains(t, props, key)
	}
	assert.NotContains(t, props, "Extensions")
}

func TestSchemaValidatorAcceptsExtensions(t *testing.T) {
	v, err := NewSchemaValidator()
	require.NoError(t, err)

	doc := map[string]interface{}{
		"tracker": map[string]interface{}{"snapshot_interval": "5m"},
		"logging": map[string]interface{}{"level": "debug"},
	}
	assert.NoError(t, v.Validate(doc))

	doc["tracker"] = map[string]interface{}{"snapshot_interval": 5}
	assert.Error(t, v.Validate(doc))
}
