package engine

import (
	"time"
)

// NewSession creates an in-progress session with an empty board. X moves
// first. Callers validate size and participants beforehand.
func NewSession(id string, width, height int, mode Mode, participants [2]Participant, now time.Time) *Session {
	return &Session{
		ID:                 id,
		Board:              NewBoard(width, height),
		Width:              width,
		Height:             height,
		CurrentTurn:        MarkX,
		Status:             StatusInProgress,
		Participants:       participants,
		Mode:               mode,
		InvitationAccepted: mode != ModeVsRemoteHuman,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Clone returns a deep copy so stores never share board slices with callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Board = append([]Mark(nil), s.Board...)
	if s.WinningLine != nil {
		cp.WinningLine = append([]int(nil), s.WinningLine...)
	}
	return &cp
}

// Participant returns the participant with the given id, or nil.
func (s *Session) Participant(id string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].ID == id {
			return &s.Participants[i]
		}
	}
	return nil
}

// ParticipantByMark returns the participant holding mark, or nil.
func (s *Session) ParticipantByMark(mark Mark) *Participant {
	for i := range s.Participants {
		if s.Participants[i].Mark == mark {
			return &s.Participants[i]
		}
	}
	return nil
}

// Opponent returns the other participant of id, or nil when id is unknown.
func (s *Session) Opponent(id string) *Participant {
	p := s.Participant(id)
	if p == nil {
		return nil
	}
	return s.ParticipantByMark(p.Mark.Opponent())
}

// SideToMove returns the participant whose mark is on turn.
func (s *Session) SideToMove() *Participant {
	return s.ParticipantByMark(s.CurrentTurn)
}

// Terminal reports whether the session accepts no more moves.
func (s *Session) Terminal() bool {
	return s.Status.Terminal()
}

// HasParticipant reports whether id plays in the session.
func (s *Session) HasParticipant(id string) bool {
	return s.Participant(id) != nil
}
