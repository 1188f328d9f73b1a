package engine

import (
	"github.com/wricardo/mcp-training/gridduel/game/gameerr"
)

// Apply places the participant's mark on cell. It is the single mutation
// point for moves; rejections leave the session untouched. Checks run in a
// fixed order: unknown participant, game over, wrong turn, out of range,
// occupied cell.
func (s *Session) Apply(participantID string, cell int) error {
	p := s.Participant(participantID)
	if p == nil {
		return gameerr.Newf(gameerr.CodeParticipantNotFound,
			"participant %s does not play in this session", participantID).ForSession(s.ID)
	}
	if s.Terminal() {
		return gameerr.Newf(gameerr.CodeGameOver, "game already finished (%s)", s.Status).ForSession(s.ID)
	}
	if p.Mark != s.CurrentTurn {
		return gameerr.Newf(gameerr.CodeWrongTurn,
			"it is %s's turn, not %s", s.CurrentTurn, p.Mark).ForSession(s.ID)
	}
	if cell < 0 || cell >= len(s.Board) {
		return gameerr.Newf(gameerr.CodeOutOfRange,
			"cell %d is outside the %dx%d board", cell, s.Width, s.Height).ForSession(s.ID)
	}
	if s.Board[cell] != Empty {
		return gameerr.Newf(gameerr.CodeCellOccupied,
			"cell %d is already taken by %s", cell, s.Board[cell]).ForSession(s.ID)
	}

	s.Board[cell] = p.Mark
	s.afterMove(p)
	return nil
}

// afterMove is the shared post-move bookkeeping: win, then draw, else the
// turn passes.
func (s *Session) afterMove(p *Participant) {
	if line := WinningLine(s.Board, s.Width, s.Height, p.Mark); line != nil {
		s.finish(WinStatus(p.Mark), p.ID, line)
		return
	}
	if BoardFull(s.Board) {
		s.finish(StatusDraw, "", nil)
		return
	}
	s.CurrentTurn = p.Mark.Opponent()
}

// Resign ends the game in favor of the other participant. The board is left
// as it was and no winning line is recorded.
func (s *Session) Resign(participantID string) error {
	p := s.Participant(participantID)
	if p == nil {
		return gameerr.Newf(gameerr.CodeParticipantNotFound,
			"participant %s does not play in this session", participantID).ForSession(s.ID)
	}
	if s.Terminal() {
		return gameerr.Newf(gameerr.CodeGameOver, "game already finished (%s)", s.Status).ForSession(s.ID)
	}
	winner := s.ParticipantByMark(p.Mark.Opponent())
	s.finish(WinStatus(winner.Mark), winner.ID, nil)
	return nil
}

func (s *Session) finish(status Status, winnerID string, line []int) {
	s.Status = status
	s.WinnerParticipantID = winnerID
	s.WinningLine = line
}
