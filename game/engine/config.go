package engine

import (
	"github.com/wricardo/mcp-training/gridduel/game/gameerr"
)

// ValidateSize checks that a board fits the supported dimensions.
func ValidateSize(width, height int) error {
	if width < MinBoardSize || width > MaxBoardSize {
		return gameerr.Newf(gameerr.CodeInvalidSize,
			"board width must be between %d and %d, got %d", MinBoardSize, MaxBoardSize, width)
	}
	if height < MinBoardSize || height > MaxBoardSize {
		return gameerr.Newf(gameerr.CodeInvalidSize,
			"board height must be between %d and %d, got %d", MinBoardSize, MaxBoardSize, height)
	}
	return nil
}

// ValidateParticipants checks that exactly one participant holds each mark
// and that their ids are distinct and non-empty.
func ValidateParticipants(participants [2]Participant) error {
	a, b := participants[0], participants[1]
	if a.ID == "" || b.ID == "" {
		return gameerr.New(gameerr.CodeInvalidInput, "participant id is required")
	}
	if a.ID == b.ID {
		return gameerr.Newf(gameerr.CodeInvalidInput, "participant %s cannot play against itself", a.ID)
	}
	if !a.Mark.Valid() || !b.Mark.Valid() || a.Mark == b.Mark {
		return gameerr.New(gameerr.CodeInvalidMark, "participants must hold one mark each")
	}
	for _, p := range participants {
		if p.Kind != KindHuman && p.Kind != KindBot {
			return gameerr.Newf(gameerr.CodeInvalidInput, "participant %s has unknown kind %q", p.ID, p.Kind)
		}
	}
	return nil
}
