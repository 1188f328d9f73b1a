// Package engine provides the board rules and session state machine for
// two-player grid games such as tic-tac-toe and its larger variants.
//
// The engine package implements:
//   - Winning line detection on any W×H board (3 ≤ W,H ≤ 20)
//   - Draw detection when the board fills up
//   - The session state machine and its single move transition
//   - Forfeit (resignation) reusing the same terminal bookkeeping
//
// Core Types:
//
// Session holds the board, the mark on turn, the status and the two
// Participants. Mark is X or O; X always moves first. Mode records whether
// the opponent is the built-in bot, a second local player or a remote user.
//
// Winning Lines:
//
// The run length needed to win is min(width, height). WinningLine considers
// every contiguous window of that length, not just full rows, so a 3×5 board
// plays three-in-a-row. Windows are scanned rows first, then columns, then
// down-right diagonals, then up-right diagonals; the first complete window
// found is reported when a move completes several at once.
//
// Usage:
//
//	s := engine.NewSession(id, 3, 3, engine.ModeVsLocalHuman, participants, time.Now())
//	if err := s.Apply(participants[0].ID, 4); err != nil {
//		// err is a *gameerr.Error: GAME_OVER, WRONG_TURN, OUT_OF_RANGE, ...
//	}
//
// All functions are deterministic and free of I/O. Persistence, locking and
// notifications live in the session and service packages.
package engine
