package mmio

// Endinit unlocks and relocks ENDINIT-protected registers, usually through the
// safety or CPU watchdog.
type Endinit interface {
	ClearEndinit()
	SetEndinit()
}

// WithoutEndinit runs fn with ENDINIT protection lifted. A nil guard runs fn
// directly.
func WithoutEndinit(g Endinit, fn func()) {
	if g == nil {
		fn()
		return
	}
	g.ClearEndinit()
	defer g.SetEndinit()
	fn()
}
