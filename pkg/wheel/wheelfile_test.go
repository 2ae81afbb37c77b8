package wheel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWheelFile(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected LibKind
		wantErr  bool
	}{
		{
			name:     "purelib",
			text:     "Wheel-Version: 1.0\nGenerator: bdist_wheel\nRoot-Is-Purelib: true\nTag: py3-none-any\n",
			expected: Pure,
		},
		{
			name:     "platlib",
			text:     "Wheel-Version: 1.0\nRoot-Is-Purelib: false\nTag: cp312-cp312-linux_x86_64\n",
			expected: Plat,
		},
		{
			name:     "missing root-is-purelib defaults to platlib",
			text:     "Wheel-Version: 1.0\n",
			expected: Plat,
		},
		{
			name:     "ancient version 0.1 is accepted",
			text:     "Wheel-Version: 0.1\nRoot-Is-Purelib: true\n",
			expected: Pure,
		},
		{
			name:     "newer minor version is accepted",
			text:     "Wheel-Version: 1.9\nRoot-Is-Purelib: true\n",
			expected: Pure,
		},
		{
			name:    "newer major version is rejected",
			text:    "Wheel-Version: 2.0\nRoot-Is-Purelib: true\n",
			wantErr: true,
		},
		{
			name:    "malformed version",
			text:    "Wheel-Version: nope\nRoot-Is-Purelib: true\n",
			wantErr: true,
		},
		{
			name:    "non-numeric minor version",
			text:    "Wheel-Version: 1.x\nRoot-Is-Purelib: true\n",
			wantErr: true,
		},
		{
			name:     "double digit minor is numeric, not lexicographic",
			text:     "Wheel-Version: 1.10\nRoot-Is-Purelib: true\n",
			expected: Pure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, err := ParseWheelFile(tt.text)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, kind)
		})
	}
}

func TestLibKindString(t *testing.T) {
	assert.Equal(t, "purelib", Pure.String())
	assert.Equal(t, "platlib", Plat.String())
}
