package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stateful/dualdoc/pkg/document/converter"
)

func TestFormat(t *testing.T) {
	conv := converter.New()

	testCases := []struct {
		name     string
		source   string
		expected string
	}{
		{
			name:     "BlankLines",
			source:   "Line 1\n\n\n\nLine 2",
			expected: "Line 1\n\nLine 2\n",
		},
		{
			name:     "YAMLFrontmatter",
			source:   "---\ntitle: x\n---\n__bold__",
			expected: "---\ntitle: x\n---\n**bold**\n",
		},
		{
			name:     "TOMLFrontmatter",
			source:   "+++\ntitle = \"x\"\n+++\n* item",
			expected: "+++\ntitle = \"x\"\n+++\n- item\n",
		},
		{
			name:     "Empty",
			source:   "",
			expected: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := format(conv, tc.source, zap.NewNop())
			require.NoError(t, err)
			assert.Equal(t, tc.expected, result)

			again, err := format(conv, result, zap.NewNop())
			require.NoError(t, err)
			assert.Equal(t, result, again)
		})
	}
}
