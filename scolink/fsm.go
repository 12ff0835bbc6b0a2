package scolink

import "github.com/cyberinferno/go-hfsco/logger"

// transition performs the side effects of a table entry and returns the
// state the session moves to.
type transition func(s *Session) State

// action is a side effect attached to a transition.
type action func(s *Session)

// to builds a transition that runs the actions in order and moves to next.
func to(next State, actions ...action) transition {
	return func(s *Session) State {
		for _, act := range actions {
			act(s)
		}

		return next
	}
}

func createPassive(s *Session) { s.createLink(false) }
func createActive(s *Session)  { s.createLink(true) }
func removeLink(s *Session)    { s.removeLink() }

// keepListening is the Listening × CloseReq entry. The passive link stays up
// for as long as an SLC may exist so the peer can still connect audio.
func keepListening(_ *Session) State { return StateListening }

// removeThen removes the current link. While the controller's LinkClosed is
// outstanding the session waits in pending. A link released at once runs
// released right away, and a rejected removal stays in rejected.
func removeThen(pending State, released transition, rejected State) transition {
	return func(s *Session) State {
		if s.removeLink() {
			return pending
		}
		if s.handle.Valid() {
			return rejected
		}

		return released(s)
	}
}

// closeDone finishes a close whose link is already gone and listens again.
func closeDone(s *Session) State {
	s.endAudio()
	s.createLink(false)
	return StateListening
}

// shutdownDone finishes a shutdown whose link is already gone.
func shutdownDone(s *Session) State {
	s.endAudio()
	return StateShutdown
}

// transitions is the complete state × event table. Missing entries are
// ignored by dispatch.
var transitions = map[State]map[Event]transition{
	StateShutdown: {
		EventListen: to(StateListening, createPassive),
	},
	StateListening: {
		EventListen:      to(StateListening, createPassive),
		EventOpenReq:     removeThen(StateClosingPendingOpen, to(StateOpening, createActive), StateListening),
		EventCloseReq:    keepListening,
		EventShutdownReq: to(StateShutdown, removeLink),
		EventConnClosed:  to(StateListening, createPassive),
	},
	StateOpening: {
		EventCloseReq:    to(StateOpenPendingClose),
		EventShutdownReq: to(StateShuttingDown),
		EventConnOpened:  to(StateOpen),
		EventConnClosed:  to(StateListening, createPassive),
	},
	StateOpenPendingClose: {
		EventOpenReq:     to(StateOpening),
		EventShutdownReq: to(StateShuttingDown),
		EventConnOpened:  removeThen(StateClosing, closeDone, StateClosing),
		EventConnClosed:  to(StateListening),
	},
	StateOpen: {
		EventCloseReq:    removeThen(StateClosing, closeDone, StateOpen),
		EventShutdownReq: removeThen(StateShuttingDown, shutdownDone, StateShuttingDown),
		EventConnClosed:  to(StateListening, createPassive),
	},
	StateClosing: {
		EventOpenReq:     to(StateClosingPendingOpen),
		EventShutdownReq: to(StateShuttingDown),
		EventConnClosed:  to(StateListening, createPassive),
	},
	StateClosingPendingOpen: {
		EventShutdownReq: to(StateShuttingDown),
		EventConnClosed:  to(StateOpening, createActive),
	},
	StateShuttingDown: {
		EventConnOpened: removeThen(StateShuttingDown, shutdownDone, StateShuttingDown),
		EventConnClosed: to(StateShutdown),
	},
}

// hasTransition reports whether the table defines ev in state st.
func hasTransition(st State, ev Event) bool {
	_, ok := transitions[st][ev]
	return ok
}

// dispatch feeds ev to the state machine.
func (s *Session) dispatch(ev Event) {
	tr, ok := transitions[s.state][ev]
	if !ok {
		s.log.Warn("event ignored",
			logger.Field{Key: "state", Value: s.state.String()},
			logger.Field{Key: "event", Value: ev.String()},
		)
		return
	}

	s.setState(tr(s), ev.String())
}
