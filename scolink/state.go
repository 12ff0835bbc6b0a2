package scolink

// State is a state of the SCO link state machine.
type State int

const (
	StateShutdown           State = iota // No link, not listening. Initial and terminal.
	StateListening                       // Passive link allocated, waiting for the peer
	StateOpening                         // Link establishment in progress
	StateOpenPendingClose                // Close requested while still opening
	StateOpen                            // Link up
	StateClosing                         // Link removal in progress
	StateClosingPendingOpen              // Open requested while still closing
	StateShuttingDown                    // Shutdown requested while a link is live
)

// States lists every state, in declaration order.
var States = []State{
	StateShutdown,
	StateListening,
	StateOpening,
	StateOpenPendingClose,
	StateOpen,
	StateClosing,
	StateClosingPendingOpen,
	StateShuttingDown,
}

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateShutdown:
		return "Shutdown"
	case StateListening:
		return "Listening"
	case StateOpening:
		return "Opening"
	case StateOpenPendingClose:
		return "OpenPendingClose"
	case StateOpen:
		return "Open"
	case StateClosing:
		return "Closing"
	case StateClosingPendingOpen:
		return "ClosingPendingOpen"
	case StateShuttingDown:
		return "ShuttingDown"
	default:
		return "Unknown"
	}
}

// Event is an input of the SCO link state machine.
type Event int

const (
	EventListen      Event = iota // Allocate a passive link
	EventOpenReq                  // Originate a link to the peer
	EventCloseReq                 // Tear the link down
	EventShutdownReq              // Tear everything down, stop listening
	EventConnOpened               // Controller reports the link is up
	EventConnClosed               // Controller reports the link is down
)

// Events lists every event, in declaration order.
var Events = []Event{
	EventListen,
	EventOpenReq,
	EventCloseReq,
	EventShutdownReq,
	EventConnOpened,
	EventConnClosed,
}

// String returns a human-readable name for the event.
func (e Event) String() string {
	switch e {
	case EventListen:
		return "Listen"
	case EventOpenReq:
		return "OpenReq"
	case EventCloseReq:
		return "CloseReq"
	case EventShutdownReq:
		return "ShutdownReq"
	case EventConnOpened:
		return "ConnOpened"
	case EventConnClosed:
		return "ConnClosed"
	default:
		return "Unknown"
	}
}
