package scheduler

type State int32

const (
	Idle State = iota
	Fetching
	Analyzing
	Distributing
	Sleeping
	Halted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Analyzing:
		return "analyzing"
	case Distributing:
		return "distributing"
	case Sleeping:
		return "sleeping"
	case Halted:
		return "halted"
	default:
		return "unknown"
	}
}
