// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package dedicatedworker

type pollState uint8

const (
	pollEmpty pollState = iota
	pollReady
	pollClosed
)

// selector multiplexes the three worker lanes. A lane whose channel closes is
// set to nil, removing it from every subsequent select. A nil lane (e.g. no
// debug source was configured) is treated as closed from the start.
type selector struct {
	inbox    <-chan Message
	timer    <-chan Message
	debug    <-chan DebugControl
	closing  <-chan struct{}
	priority [laneCount]Lane
	addr     Address
	next     int
	policy   SelectPolicy
}

func (s *selector) open() bool {
	return s.inbox != nil || s.timer != nil || s.debug != nil
}

// receiveNext blocks until an envelope is available on some lane. It returns
// [ErrChannelClosed] once every lane has closed, or errClosing if the closing
// signal fires while waiting.
func (s *selector) receiveNext() (Envelope, error) {
	for {
		if !s.open() {
			return Envelope{}, ErrChannelClosed
		}

		switch s.policy {
		case SelectRoundRobin:
			for i := range laneCount {
				lane := Lane((s.next + i) % laneCount)
				if env, state := s.poll(lane); state == pollReady {
					s.next = (int(lane) + 1) % laneCount
					return env, nil
				}
			}
		case SelectPriority:
			for _, lane := range s.priority {
				if env, state := s.poll(lane); state == pollReady {
					return env, nil
				}
			}
		}

		if !s.open() {
			return Envelope{}, ErrChannelClosed
		}

		env, state, err := s.wait()
		if err != nil {
			return Envelope{}, err
		}
		if state == pollReady {
			if s.policy == SelectRoundRobin {
				s.next = (int(env.Lane) + 1) % laneCount
			}
			return env, nil
		}
		// a lane closed, loop around and re-evaluate
	}
}

// poll performs a non-blocking receive on a single lane.
func (s *selector) poll(lane Lane) (Envelope, pollState) {
	switch lane {
	case LaneInbox:
		if s.inbox == nil {
			return Envelope{}, pollClosed
		}
		select {
		case msg, ok := <-s.inbox:
			if !ok {
				s.inbox = nil
				return Envelope{}, pollClosed
			}
			return Envelope{Lane: LaneInbox, Message: msg}, pollReady
		default:
		}
	case LaneTimer:
		if s.timer == nil {
			return Envelope{}, pollClosed
		}
		select {
		case msg, ok := <-s.timer:
			if !ok {
				s.timer = nil
				return Envelope{}, pollClosed
			}
			return Envelope{Lane: LaneTimer, Message: msg}, pollReady
		default:
		}
	case LaneDebug:
		if s.debug == nil {
			return Envelope{}, pollClosed
		}
		select {
		case ctl, ok := <-s.debug:
			if !ok {
				s.debug = nil
				return Envelope{}, pollClosed
			}
			return Envelope{Lane: LaneDebug, Message: &DebugMessage{Worker: s.addr, Control: ctl}}, pollReady
		default:
		}
	}
	return Envelope{}, pollEmpty
}

// wait blocks on every open lane and the closing signal. Receiving from a nil
// channel blocks forever, so closed lanes never win.
func (s *selector) wait() (Envelope, pollState, error) {
	select {
	case msg, ok := <-s.inbox:
		if !ok {
			s.inbox = nil
			return Envelope{}, pollClosed, nil
		}
		return Envelope{Lane: LaneInbox, Message: msg}, pollReady, nil
	case msg, ok := <-s.timer:
		if !ok {
			s.timer = nil
			return Envelope{}, pollClosed, nil
		}
		return Envelope{Lane: LaneTimer, Message: msg}, pollReady, nil
	case ctl, ok := <-s.debug:
		if !ok {
			s.debug = nil
			return Envelope{}, pollClosed, nil
		}
		return Envelope{Lane: LaneDebug, Message: &DebugMessage{Worker: s.addr, Control: ctl}}, pollReady, nil
	case <-s.closing:
		return Envelope{}, pollEmpty, errClosing
	}
}
