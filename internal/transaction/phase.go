package transaction

// Phase is the lifecycle state of one transaction.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSnapshotTaken
	PhaseApplying
	PhaseCommitted
	PhaseRolledBack
)

// String returns the phase name for logs.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSnapshotTaken:
		return "snapshot-taken"
	case PhaseApplying:
		return "applying"
	case PhaseCommitted:
		return "committed"
	case PhaseRolledBack:
		return "rolled-back"
	default:
		return "unknown"
	}
}
