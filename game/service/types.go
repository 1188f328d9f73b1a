package service

import (
	"github.com/wricardo/mcp-training/gridduel/game/engine"
)

// ParticipantSpec describes one side of a new session. Empty ids are
// generated for local and bot participants.
type ParticipantSpec struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// CreateRequest configures a new session.
//
// First is the configuring participant and receives ChosenMark (X when
// empty). Second receives the other mark; in vs_bot sessions Second is always
// the bot. Width and Height win over Preset; with neither the default preset
// is used.
type CreateRequest struct {
	Mode       engine.Mode     `json:"mode"`
	Preset     string          `json:"preset,omitempty"`
	Width      int             `json:"width,omitempty"`
	Height     int             `json:"height,omitempty"`
	ChosenMark string          `json:"chosen_mark,omitempty"`
	First      ParticipantSpec `json:"first"`
	Second     ParticipantSpec `json:"second"`

	// InvitationAccepted marks a remote session as playable from the
	// start. Matchmaking pairs set it; invitations and rematches leave it
	// false until the invitee accepts.
	InvitationAccepted bool `json:"invitation_accepted,omitempty"`
}

const (
	botDisplayName = "Bot"
	defaultFirst   = "Player 1"
	defaultSecond  = "Player 2"
)
