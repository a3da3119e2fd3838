package fastmixer

// Command selects what the render goroutine does each cycle.
type Command uint32

const (
	// CommandInitialize writes silence until the sink is warm, then behaves
	// like CommandColdIdle.
	CommandInitialize Command = iota
	// CommandHotIdle sleeps briefly each cycle, ready to resume quickly.
	CommandHotIdle
	// CommandColdIdle sleeps for long periods, until woken.
	CommandColdIdle
	// CommandRender mixes every enabled source and writes to the sink.
	CommandRender
	// CommandExit terminates the render goroutine.
	CommandExit
)

// String returns a human-readable representation of the command.
func (c Command) String() string {
	switch c {
	case CommandInitialize:
		return "Initialize"
	case CommandHotIdle:
		return "HotIdle"
	case CommandColdIdle:
		return "ColdIdle"
	case CommandRender:
		return "Render"
	case CommandExit:
		return "Exit"
	default:
		return "Unknown"
	}
}

// valid reports whether c is one of the defined commands.
func (c Command) valid() bool {
	return c <= CommandExit
}
