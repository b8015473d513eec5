package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	// Invariant that all default configurations are equal.
	expected, err := newDefault()
	require.NoError(t, err)
	got := Default()
	opts := cmpopts.EquateEmpty()
	require.True(
		t,
		cmp.Equal(expected, got, opts),
		"%s",
		cmp.Diff(expected, got, opts),
	)

	assert.Equal(t, 500*time.Millisecond, got.Persistence.Debounce)
	assert.Equal(t, 30*time.Second, got.Persistence.SaveTimeout)
	assert.Equal(t, int64(10*1024), got.Switch.SavingNoticeBytes)
	assert.Equal(t, int64(5*1024*1024), got.Switch.LargeFileBytes)
	assert.Equal(t, []string{"*.md", "*.markdown"}, got.Watch.Patterns)
}

func TestDefault_ReturnsCopy(t *testing.T) {
	a := Default()
	a.Watch.Patterns[0] = "changed"
	assert.Equal(t, "*.md", Default().Watch.Patterns[0])
}

func TestParseYAML(t *testing.T) {
	testCases := []struct {
		name           string
		rawConfig      string
		expected       func(*Config)
		errorSubstring string
	}{
		{
			name:      "only version",
			rawConfig: "version: v1\n",
			expected:  func(*Config) {},
		},
		{
			name: "overrides",
			rawConfig: `version: v1
persistence:
  debounce: 2s
switch:
  large_file_bytes: 1024
watch:
  patterns: ["**/*.mdx"]
  filter: kind == "modified"
sanitize:
  extra_link_protocols: [ftp]
log:
  enabled: true
  verbose: true
`,
			expected: func(c *Config) {
				c.Persistence.Debounce = 2 * time.Second
				c.Switch.LargeFileBytes = 1024
				c.Watch.Patterns = []string{"**/*.mdx"}
				c.Watch.Filter = `kind == "modified"`
				c.Sanitize.ExtraLinkProtocols = []string{"ftp"}
				c.Log.Enabled = true
				c.Log.Verbose = true
			},
		},
		{
			name:           "unknown version",
			rawConfig:      "version: v2\n",
			errorSubstring: `unknown version: "v2"`,
		},
		{
			name:           "missing version",
			rawConfig:      "persistence:\n  debounce: 1s\n",
			errorSubstring: `unknown version: ""`,
		},
		{
			name: "negative debounce",
			rawConfig: `version: v1
persistence:
  debounce: -1s
`,
			errorSubstring: "failed to validate v1 config",
		},
		{
			name: "zero save timeout",
			rawConfig: `version: v1
persistence:
  save_timeout: 0s
`,
			errorSubstring: "failed to validate v1 config",
		},
		{
			name: "unsafe protocol",
			rawConfig: `version: v1
sanitize:
  extra_link_protocols: [javascript]
`,
			errorSubstring: "failed to validate v1 config",
		},
		{
			name: "invalid duration",
			rawConfig: `version: v1
persistence:
  debounce: soon
`,
			errorSubstring: "failed to parse v1 config",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := ParseYAML([]byte(tc.rawConfig))
			if tc.errorSubstring != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errorSubstring)
				return
			}
			require.NoError(t, err)

			expected := Default()
			tc.expected(expected)
			opts := cmpopts.EquateEmpty()
			require.True(t, cmp.Equal(expected, cfg, opts), "%s", cmp.Diff(expected, cfg, opts))
		})
	}
}
