package linker

// Hard linking, symlinking or reflinking might not be supported by the
// destination filesystem, and there is no reliable way to detect that ahead
// of time. So the first file is the probe: if the primary operation succeeds
// once, later errors are genuine I/O errors rather than a capability gap. If
// it fails, the rest of the install switches to plain copying.
type attempt int

const (
	// attemptInitial means no strategy call has been made yet; capability is
	// unknown.
	attemptInitial attempt = iota
	// attemptSubsequent means the primary strategy has succeeded at least
	// once; capability is proven.
	attemptSubsequent
	// attemptUseCopyFallback means the primary strategy failed in a way that
	// is not per-file recoverable; all remaining files use plain copy.
	// Terminal: degradation is monotonic within a single installation.
	attemptUseCopyFallback
)
