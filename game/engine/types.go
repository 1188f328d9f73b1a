package engine

import (
	"fmt"
	"strings"
	"time"
)

// Mark is the symbol a participant places on the board.
type Mark string

const (
	Empty Mark = ""
	MarkX Mark = "X" // always moves first
	MarkO Mark = "O"
)

// Board size limits. The run length needed to win is min(width, height).
const (
	MinBoardSize = 3
	MaxBoardSize = 20
)

// Valid reports whether m is a playable mark.
func (m Mark) Valid() bool {
	return m == MarkX || m == MarkO
}

// Opponent returns the other playable mark.
func (m Mark) Opponent() Mark {
	if m == MarkX {
		return MarkO
	}
	return MarkX
}

// ParseMark accepts "X"/"O" in any case. An empty string yields MarkX.
func ParseMark(s string) (Mark, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "X":
		return MarkX, nil
	case "O":
		return MarkO, nil
	}
	return Empty, fmt.Errorf("unknown mark %q", s)
}

// Status is the lifecycle state of a session.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusXWins      Status = "x_wins"
	StatusOWins      Status = "o_wins"
	StatusDraw       Status = "draw"
)

// Terminal reports whether no further moves are accepted.
func (s Status) Terminal() bool {
	return s != StatusInProgress
}

// WinStatus returns the terminal status for a win by m.
func WinStatus(m Mark) Status {
	if m == MarkX {
		return StatusXWins
	}
	return StatusOWins
}

// Mode is how the two sides of a session are driven.
type Mode string

const (
	ModeVsBot         Mode = "vs_bot"
	ModeVsLocalHuman  Mode = "vs_local_human"
	ModeVsRemoteHuman Mode = "vs_remote_human"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeVsBot, ModeVsLocalHuman, ModeVsRemoteHuman:
		return true
	}
	return false
}

// ParticipantKind distinguishes humans from the built-in bot.
type ParticipantKind string

const (
	KindHuman ParticipantKind = "human"
	KindBot   ParticipantKind = "bot"
)

// Participant is one side of a session. Immutable after creation.
type Participant struct {
	ID          string          `json:"id"`
	DisplayName string          `json:"display_name"`
	Mark        Mark            `json:"mark"`
	Kind        ParticipantKind `json:"kind"`
}

// Session is one game from creation to a terminal state.
type Session struct {
	ID                  string         `json:"id"`
	Board               []Mark         `json:"board"`
	Width               int            `json:"width"`
	Height              int            `json:"height"`
	CurrentTurn         Mark           `json:"current_turn"`
	Status              Status         `json:"status"`
	WinnerParticipantID string         `json:"winner_participant_id,omitempty"`
	WinningLine         []int          `json:"winning_line,omitempty"`
	Participants        [2]Participant `json:"participants"`
	Mode                Mode           `json:"mode"`
	InvitationAccepted  bool           `json:"invitation_accepted"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`

	// Version is bumped by every successful store write and guards
	// read-modify-write cycles against concurrent writers.
	Version int64 `json:"version"`
}
