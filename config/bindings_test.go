package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ruteri/content-service-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBindings = `
bindings:
  - tag: local
    providerType: filesystem
    properties:
      rootDirectory: /data
  - tag: alfresco
    providerType: rest
    properties:
      endpoint: https://cms.example.com/api
      collectionRoot: /Sites/content
      authMode: ticket
      user: admin
      password: secret
      timeout: 15s
  - tag: blobs
    providerType: s3
    properties:
      bucket: content
      forcePathStyle: true
`

func TestParseBindings(t *testing.T) {
	bindings, err := ParseBindings(strings.NewReader(sampleBindings))
	require.NoError(t, err)
	require.Len(t, bindings, 3)
	assert.Equal(t, []string{"local", "alfresco", "blobs"}, []string{bindings[0].Tag, bindings[1].Tag, bindings[2].Tag})
	assert.Equal(t, "rest", bindings[1].ProviderType)

	root, err := RequiredString(bindings[0], "rootDirectory")
	require.NoError(t, err)
	assert.Equal(t, "/data", root)

	timeout, err := OptionalDuration(bindings[1], "timeout", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, timeout)

	pathStyle, err := OptionalBool(bindings[2], "forcePathStyle", false)
	require.NoError(t, err)
	assert.True(t, pathStyle)

	region, err := OptionalString(bindings[2], "region", "us-east-1")
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", region)
}

func TestParseBindings_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "missing tag",
			input: "bindings:\n  - providerType: filesystem\n",
		},
		{
			name:  "missing provider type",
			input: "bindings:\n  - tag: local\n",
		},
		{
			name:  "duplicate tag",
			input: "bindings:\n  - tag: a\n    providerType: filesystem\n  - tag: a\n    providerType: rest\n",
		},
		{
			name:  "unknown field",
			input: "bindings:\n  - tag: a\n    providerType: filesystem\n    props: {}\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBindings(strings.NewReader(tt.input))
			assert.True(t, errors.Is(err, interfaces.ErrConfiguration), "got %v", err)
		})
	}
}

func TestParseBindings_Empty(t *testing.T) {
	bindings, err := ParseBindings(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, bindings)
}

func TestAccessors_Errors(t *testing.T) {
	b := interfaces.StorageBinding{Tag: "x", Properties: map[string]any{
		"blank":   "  ",
		"number":  12,
		"badBool": "maybe",
		"badDur":  "soon",
		"intDur":  3,
		"strBool": "true",
	}}

	_, err := RequiredString(b, "missing")
	assert.True(t, errors.Is(err, interfaces.ErrConfiguration))
	_, err = RequiredString(b, "blank")
	assert.True(t, errors.Is(err, interfaces.ErrConfiguration))
	_, err = RequiredString(b, "number")
	assert.True(t, errors.Is(err, interfaces.ErrConfiguration))
	_, err = OptionalBool(b, "badBool", false)
	assert.True(t, errors.Is(err, interfaces.ErrConfiguration))
	_, err = OptionalDuration(b, "badDur", 0)
	assert.True(t, errors.Is(err, interfaces.ErrConfiguration))

	d, err := OptionalDuration(b, "intDur", 0)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, d)
	v, err := OptionalBool(b, "strBool", false)
	require.NoError(t, err)
	assert.True(t, v)
}

func TestLoadBindings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bindings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleBindings), 0o600))

	bindings, err := LoadBindings(path)
	require.NoError(t, err)
	assert.Len(t, bindings, 3)

	_, err = LoadBindings(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, interfaces.ErrConfiguration))
}
