package scripts

import (
	"fmt"
	"strings"
)

// Launcher returns the Python wrapper script for an entry point.
//
// The template matches pip's distlib launcher, minus the `import re` so that
// scripts which never import `re` load faster.
func Launcher(script Script, shebang string) string {
	return fmt.Sprintf(`%s
# -*- coding: utf-8 -*-
import sys
from %s import %s
if __name__ == "__main__":
    if sys.argv[0].endswith("-script.pyw"):
        sys.argv[0] = sys.argv[0][:-11]
    elif sys.argv[0].endswith(".exe"):
        sys.argv[0] = sys.argv[0][:-4]
    sys.exit(%s())
`, shebang, script.Module, script.ImportName(), script.Function)
}

// FormatShebang builds the shebang line for a launcher.
//
// Like pip, a non-simple shebang (too long or containing spaces) is wrapped
// in a /bin/sh trampoline. Relocatable scripts always take the trampoline
// path, with the executable resolved relative to the script's own directory.
func FormatShebang(executable, osName string, relocatable bool) string {
	if osName == "posix" {
		// The length of the full line: the shebang, plus the leading `#` and
		// `!`, and a trailing newline.
		shebangLength := 2 + len(executable) + 1

		if shebangLength > 127 || strings.Contains(executable, " ") || relocatable {
			prefix := ""
			if relocatable {
				prefix = `"$(dirname -- "$(realpath -- "$0")")"/`
			}
			quoted := prefix + "'" + escapePosixForSingleQuotes(executable) + "'"
			return fmt.Sprintf("#!/bin/sh\n'''exec' %s \"$0\" \"$@\"\n' '''", quoted)
		}
	}

	return "#!" + executable
}

// escapePosixForSingleQuotes escapes a string for use inside single quotes in
// a POSIX shell.
func escapePosixForSingleQuotes(s string) string {
	return strings.ReplaceAll(s, "'", `'\''`)
}
