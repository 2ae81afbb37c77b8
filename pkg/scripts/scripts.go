// Package scripts parses entry_points.txt and generates the launcher scripts
// installed into the environment's scripts directory.
package scripts

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/arthur-debert/wheelhouse/pkg/errors"
)

// Script is a parsed console or GUI entry point.
type Script struct {
	Name     string
	Module   string
	Function string
}

// ImportName returns the symbol the launcher must import from the module:
// the leading attribute of the function path.
func (s Script) ImportName() string {
	name, _, found := strings.Cut(s.Function, ".")
	if !found {
		return s.Function
	}
	return name
}

// Matches "module:function [extra1,extra2]" with the function and extras
// optional, mirroring the entry-point value grammar.
var scriptRe = regexp.MustCompile(
	`^(?P<module>[\w.-]+)(?::(?P<function>[\w.-]+))?(?:\s+\[(?P<extras>(?:[^,\]]+,?\s*)+)\])?$`)

// ParseValue parses a single entry-point value. When extras is non-nil, a
// script guarded by extras outside that set is skipped (nil, nil). A nil
// extras slice means "ignore extras" and always keeps the script.
func ParseValue(name, value string, extras []string) (*Script, error) {
	matches := scriptRe.FindStringSubmatch(strings.TrimSpace(value))
	if matches == nil {
		return nil, errors.Newf(errors.ErrInvalidWheel,
			"invalid entry point %q: value %q", name, value)
	}

	// A bare module reference cannot be turned into a launcher: the generated
	// script imports and calls the function.
	if matches[scriptRe.SubexpIndex("function")] == "" {
		return nil, errors.Newf(errors.ErrInvalidWheel,
			"invalid entry point %q: value %q is missing a function", name, value)
	}

	if extras != nil {
		scriptExtras := matches[scriptRe.SubexpIndex("extras")]
		if scriptExtras != "" {
			for _, extra := range strings.Split(scriptExtras, ",") {
				if !slices.Contains(extras, strings.TrimSpace(extra)) {
					return nil, nil
				}
			}
		}
	}

	return &Script{
		Name:     name,
		Module:   matches[scriptRe.SubexpIndex("module")],
		Function: matches[scriptRe.SubexpIndex("function")],
	}, nil
}

// FromIni parses entry_points.txt, returning console and GUI scripts.
//
// pythonMinor feeds the versioned launcher aliases pip generates for itself:
// a console script named `pip` also yields `pip3` and `pip3.<minor>`, and
// `easy_install` yields `easy_install-3.<minor>`.
func FromIni(extras []string, pythonMinor int, text string) ([]Script, []Script, error) {
	file, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, []byte(text))
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrInvalidWheel, "entry_points.txt is invalid")
	}

	console, err := readSection(file, "console_scripts", extras)
	if err != nil {
		return nil, nil, err
	}
	gui, err := readSection(file, "gui_scripts", extras)
	if err != nil {
		return nil, nil, err
	}

	console = append(console, versionedAliases(console, pythonMinor)...)

	return console, gui, nil
}

func readSection(file *ini.File, section string, extras []string) ([]Script, error) {
	sec, err := file.GetSection(section)
	if err != nil {
		// Absent section means no scripts of that kind.
		return nil, nil
	}

	var scripts []Script
	for _, key := range sec.Keys() {
		if key.Value() == "" {
			return nil, errors.Newf(errors.ErrInvalidWheel,
				"[%s] key %s must have a value", section, key.Name())
		}
		script, err := ParseValue(key.Name(), key.Value(), extras)
		if err != nil {
			return nil, err
		}
		if script != nil {
			scripts = append(scripts, *script)
		}
	}
	return scripts, nil
}

// versionedAliases mirrors pip's special casing of its own launchers.
func versionedAliases(console []Script, pythonMinor int) []Script {
	var aliases []Script
	for _, script := range console {
		switch script.Name {
		case "pip":
			for _, name := range []string{"pip3", fmt.Sprintf("pip3.%d", pythonMinor)} {
				alias := script
				alias.Name = name
				aliases = append(aliases, alias)
			}
		case "easy_install":
			alias := script
			alias.Name = fmt.Sprintf("easy_install-3.%d", pythonMinor)
			aliases = append(aliases, alias)
		}
	}
	return aliases
}
