package install

import (
	"golang.org/x/sync/errgroup"

	"github.com/arthur-debert/wheelhouse/pkg/linker"
)

// Request is one wheel in a batch installation.
type Request struct {
	// WheelDir is the unpacked wheel's root directory.
	WheelDir string
	// Filename is the wheel's original on-disk name.
	Filename string
	Options  Options
}

// All installs a batch of unpacked wheels concurrently, at most parallel at a
// time. The wheels share one lock registry so that concurrent copies into the
// same destination directory never interleave. The first error cancels
// nothing already in flight but stops new installs.
func All(layout *Layout, relocatable bool, requests []Request, parallel int) error {
	if parallel < 1 {
		parallel = 1
	}
	locks := linker.NewLocks()

	var group errgroup.Group
	group.SetLimit(parallel)
	for _, req := range requests {
		req := req
		group.Go(func() error {
			req.Options.Locks = locks
			return Wheel(layout, relocatable, req.WheelDir, req.Filename, req.Options)
		})
	}
	return group.Wait()
}
