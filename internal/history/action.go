package history

// Action is a user intent processed by Reduce. The set is closed.
type Action interface {
	action()
}

// Select selects the step with the given id.
type Select struct{ ID string }

// Delete removes the selected step.
type Delete struct{}

// StepBack moves the selection to the next older step.
type StepBack struct{}

// StepForward moves the selection to the next newer step.
type StepForward struct{}

// RowAction is an intent raised by a single rendered row.
type RowAction int

const (
	RowTapped RowAction = iota
)

func (a RowAction) String() string {
	switch a {
	case RowTapped:
		return "tapped"
	default:
		return "unknown"
	}
}

// Row routes a row action to the row identified by ID.
type Row struct {
	ID     string
	Action RowAction
}

// Origin tells where a reset payload came from.
type Origin int

const (
	OriginLocal Origin = iota
	OriginPeer
)

func (o Origin) String() string {
	if o == OriginPeer {
		return "peer"
	}
	return "local"
}

// Reset carries an externally supplied snapshot to be adopted by the host.
type Reset struct {
	Payload []byte
	Origin  Origin
}

func (Select) action()      {}
func (Delete) action()      {}
func (StepBack) action()    {}
func (StepForward) action() {}
func (Row) action()         {}
func (Reset) action()       {}
