package domain

// Phase is the single ordered state describing how far process startup or
// shutdown has progressed. Phases only move forward.
type Phase int

const (
	PhaseBeforeInit Phase = iota
	PhaseInitBusy
	PhaseInitDone
	PhaseCleanupBusy
)

// String returns a human-readable representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseBeforeInit:
		return "BeforeInit"
	case PhaseInitBusy:
		return "InitBusy"
	case PhaseInitDone:
		return "InitDone"
	case PhaseCleanupBusy:
		return "CleanupBusy"
	default:
		return "Unknown"
	}
}
