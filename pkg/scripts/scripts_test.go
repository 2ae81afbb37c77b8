package scripts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		extras   []string
		expected *Script
	}{
		{
			name:     "module and function",
			value:    "foomod:main",
			extras:   nil,
			expected: &Script{Name: "foo", Module: "foomod", Function: "main"},
		},
		{
			name:     "dotted function",
			value:    "foomod:cli.main",
			extras:   nil,
			expected: &Script{Name: "foo", Module: "foomod", Function: "cli.main"},
		},
		{
			name:     "extras ignored when nil",
			value:    "foomod:main_bar [bar,baz]",
			extras:   nil,
			expected: &Script{Name: "foo", Module: "foomod", Function: "main_bar"},
		},
		{
			name:     "extras selected",
			value:    "foomod:main_bar [bar,baz]",
			extras:   []string{"bar", "baz"},
			expected: &Script{Name: "foo", Module: "foomod", Function: "main_bar"},
		},
		{
			name:     "extras not selected",
			value:    "foomod:main_bar [bar,baz]",
			extras:   []string{},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script, err := ParseValue("foo", tt.value, tt.extras)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, script)
		})
	}
}

func TestParseValueInvalid(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{name: "garbage", value: "not valid!"},
		// A module-only value has nothing to call; the launcher would be
		// invalid Python.
		{name: "missing function", value: "foomod"},
		{name: "missing function with extras", value: "foomod [bar]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseValue("foo", tt.value, nil)
			require.Error(t, err)
		})
	}
}

func TestImportName(t *testing.T) {
	assert.Equal(t, "main", Script{Function: "main"}.ImportName())
	assert.Equal(t, "cli", Script{Function: "cli.main"}.ImportName())
}

func TestFromIni(t *testing.T) {
	text := `[console_scripts]
foo = foomod:main
bar = barmod:main_bar [extra]

[gui_scripts]
baz = bazmod:main_baz
`

	console, gui, err := FromIni(nil, 12, text)
	require.NoError(t, err)

	assert.Equal(t, []Script{
		{Name: "foo", Module: "foomod", Function: "main"},
		{Name: "bar", Module: "barmod", Function: "main_bar"},
	}, console)
	assert.Equal(t, []Script{
		{Name: "baz", Module: "bazmod", Function: "main_baz"},
	}, gui)
}

func TestFromIniMissingSections(t *testing.T) {
	console, gui, err := FromIni(nil, 12, "[other]\nkey = value\n")
	require.NoError(t, err)
	assert.Empty(t, console)
	assert.Empty(t, gui)
}

func TestFromIniEmptyValue(t *testing.T) {
	_, _, err := FromIni(nil, 12, "[console_scripts]\nfoo =\n")
	require.Error(t, err)
}

func TestFromIniPipAliases(t *testing.T) {
	text := `[console_scripts]
pip = pip._internal.cli.main:main
easy_install = setuptools.command.easy_install:main
`

	console, _, err := FromIni(nil, 12, text)
	require.NoError(t, err)

	names := make([]string, 0, len(console))
	for _, script := range console {
		names = append(names, script.Name)
	}
	assert.ElementsMatch(t, []string{
		"pip", "easy_install", "pip3", "pip3.12", "easy_install-3.12",
	}, names)
}
