// Package api provides the HTTP REST API for Grid Duel.
//
// Endpoints:
//
// Sessions:
//   - POST /api/sessions - Create a session
//   - GET /api/sessions/{id} - Get a session
//   - DELETE /api/sessions/{id}?participant_id= - Delete a session
//   - POST /api/sessions/{id}/moves - Place a mark {participant_id, cell}
//   - POST /api/sessions/{id}/forfeit - Resign {participant_id}
//
// Users:
//   - POST /api/users - Register a user {id, display_name}
//   - POST /api/users/{id}/friends - Add a friend {friend_id}
//   - GET /api/users/{id}/friends - Friend ids of a user
//   - GET /api/users/{id}/sessions - Remote sessions of a user
//   - GET /api/users/{id}/invitations - Invitations awaiting the user
//
// Matchmaking:
//   - POST /api/matchmaking/join - {user_id, display_name}
//   - POST /api/matchmaking/leave - {user_id}
//   - GET /api/matchmaking/status?user_id=
//
// Invitations and rematches:
//   - POST /api/invitations - {inviter_id, invitee_id, preset|width+height}
//   - POST /api/invitations/{id}/accept - {user_id}
//   - POST /api/invitations/{id}/decline - {user_id}
//   - POST /api/rematch - {requester_id, opponent_id, previous_session_id}
//   - POST /api/sessions/{id}/rematch/accept - {user_id}
//   - POST /api/sessions/{id}/rematch/decline - {user_id}
//
// Presets:
//   - GET /api/presets
//   - POST /api/presets - {id, name, description, width, height}
//
// Errors are returned as JSON with a status derived from the error kind:
//
//	{
//	  "error": "session 4f1c...: not your turn",
//	  "code": "WRONG_TURN"
//	}
package api
