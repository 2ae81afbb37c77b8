// Package install orchestrates wheel installation: it validates an unpacked
// wheel against its filename, materializes its files via a linking strategy,
// generates entry-point scripts, relocates data directories, and rewrites the
// RECORD manifest.
package install

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// Scheme holds the destination directories of the target environment, one
// per wheel data key.
type Scheme struct {
	Purelib string
	Platlib string
	Scripts string
	Include string
	Data    string
}

// Layout describes the target environment.
type Layout struct {
	// PythonMajor and PythonMinor identify the environment interpreter.
	PythonMajor int
	PythonMinor int
	// SysExecutable is the absolute path of the environment's interpreter.
	SysExecutable string
	// OSName is the interpreter's os.name: "posix" or "nt".
	OSName string
	Scheme Scheme
}

// NewVenvLayout builds the standard virtualenv layout rooted at root.
func NewVenvLayout(root string, pythonMajor, pythonMinor int) *Layout {
	if runtime.GOOS == "windows" {
		sitePackages := filepath.Join(root, "Lib", "site-packages")
		return &Layout{
			PythonMajor:   pythonMajor,
			PythonMinor:   pythonMinor,
			SysExecutable: filepath.Join(root, "Scripts", "python.exe"),
			OSName:        "nt",
			Scheme: Scheme{
				Purelib: sitePackages,
				Platlib: sitePackages,
				Scripts: filepath.Join(root, "Scripts"),
				Include: filepath.Join(root, "Include"),
				Data:    root,
			},
		}
	}

	sitePackages := filepath.Join(root, "lib",
		fmt.Sprintf("python%d.%d", pythonMajor, pythonMinor), "site-packages")
	return &Layout{
		PythonMajor:   pythonMajor,
		PythonMinor:   pythonMinor,
		SysExecutable: filepath.Join(root, "bin", "python"),
		OSName:        "posix",
		Scheme: Scheme{
			Purelib: sitePackages,
			Platlib: sitePackages,
			Scripts: filepath.Join(root, "bin"),
			Include: filepath.Join(root, "include"),
			Data:    root,
		},
	}
}
