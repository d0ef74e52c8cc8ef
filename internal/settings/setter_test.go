package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValue(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		key     string
		value   string
		want    any
		wantErr string
	}{
		"bool":         {key: "deploy.run", value: "TRUE", want: true},
		"invalid bool": {key: "deploy.run", value: "yes", wantErr: "invalid boolean"},
		"enum":         {key: "create.config_type", value: "YAML", want: "yaml"},
		"invalid enum": {key: "log_level", value: "loud", wantErr: "valid options: debug, info, warn, error"},
		"list":         {key: "deploy.tags", value: "dev, latest,,", want: []string{"dev", "latest"}},
		"string":       {key: "deploy.cron", value: "0 8 * * *", want: "0 8 * * *"},
		"unknown key":  {key: "deploy.nope", value: "x", wantErr: "unknown settings key"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseValue(tt.key, tt.value)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetValue(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", FileName)
	require.NoError(t, SetValue(path, "deploy.run", "true"))
	require.NoError(t, SetValue(path, "deploy.tags", "dev,prod"))
	require.NoError(t, SetValue(path, "log_level", "debug"))

	values, err := Values(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"deploy.run":  true,
		"deploy.tags": []any{"dev", "prod"},
		"log_level":   "debug",
	}, values)

	s, err := Load(path)
	require.NoError(t, err)
	assert.True(t, s.Deploy.Run)
	assert.Equal(t, []string{"dev", "prod"}, s.Deploy.Tags)
}

func TestSetValue_PreservesComments(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("# project settings\ndeploy:\n  run: false # keep\n"), 0o644))

	require.NoError(t, SetValue(path, "deploy.run", "true"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# project settings")
	assert.Contains(t, string(data), "run: true")
}

func TestSetValue_Invalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), FileName)
	assert.Error(t, SetValue(path, "deploy.run", "maybe"))
	assert.Error(t, SetValue(path, "unknown", "x"))
	assert.NoFileExists(t, path)
}

func TestUnsetValue(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, SetValue(path, "deploy.run", "true"))
	require.NoError(t, SetValue(path, "check.raise_error", "true"))
	require.NoError(t, SetValue(path, "check.all", "true"))

	require.NoError(t, UnsetValue(path, "deploy.run"))
	require.NoError(t, UnsetValue(path, "check.all"))
	require.NoError(t, UnsetValue(path, "list.with_configs"), "absent key")

	values, err := Values(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"check.raise_error": true}, values)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "deploy", "empty parent mapping is removed")

	assert.Error(t, UnsetValue(path, "unknown"))
}

func TestValues_MissingFile(t *testing.T) {
	t.Parallel()

	values, err := Values(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	assert.Empty(t, values)
}
