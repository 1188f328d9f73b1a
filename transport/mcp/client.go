package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/mcp-training/gridduel/game/config"
	"github.com/wricardo/mcp-training/gridduel/game/engine"
	"github.com/wricardo/mcp-training/gridduel/game/matchmaking"
	"github.com/wricardo/mcp-training/gridduel/game/negotiation"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Grid Duel",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Grid Duel - MCP Interface

This is a thin client that proxies all requests to the REST API server.

GAME OBJECTIVE:
Two players alternate placing X and O on a rectangular board (3 to 20 cells per side).
The first to line up min(width, height) marks in a row, column or diagonal wins.
X always moves first. Cells are numbered row by row from 0.

AVAILABLE TOOLS:
- create_session: Start a game against the bot, a local human, or a remote player
- get_session: Show the board and whose turn it is
- make_move: Place your mark on a cell
- forfeit: Resign the game
- matchmaking_join / matchmaking_leave / matchmaking_status: Find a random opponent
- invite_friend / answer_invitation: Play a friend
- request_rematch: Ask your last opponent for another game
- list_presets: Show the available board sizes`),
	)

	c.registerTools()
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

func integerProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": description,
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Sessions
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new game session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"mode": map[string]interface{}{
					"type":        "string",
					"enum":        []string{string(engine.ModeVsBot), string(engine.ModeVsLocalHuman), string(engine.ModeVsRemoteHuman)},
					"description": "Who drives the other side",
				},
				"preset":      stringProp("Board preset id (optional)"),
				"width":       integerProp("Board width, overrides the preset (optional)"),
				"height":      integerProp("Board height, overrides the preset (optional)"),
				"chosen_mark": stringProp("X or O for the creating player (default X)"),
				"player_id":   stringProp("Your participant id (optional)"),
				"opponent_id": stringProp("Opponent id, required for vs_remote_human"),
			},
			Required: []string{"mode"},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get the board, status and participants of a session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": stringProp("Session ID to retrieve"),
			},
			Required: []string{"session_id"},
		},
	}, c.handleGetSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "make_move",
		Description: "Place your mark on a cell (row * width + column)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id":     stringProp("Session ID"),
				"participant_id": stringProp("Your participant id"),
				"cell":           integerProp("Cell index, row by row from 0"),
			},
			Required: []string{"session_id", "participant_id", "cell"},
		},
	}, c.handleMakeMove)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "forfeit",
		Description: "Resign a session; the opponent wins",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id":     stringProp("Session ID"),
				"participant_id": stringProp("Your participant id"),
			},
			Required: []string{"session_id", "participant_id"},
		},
	}, c.handleForfeit)

	// Matchmaking
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "matchmaking_join",
		Description: "Search for a random remote opponent",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id":      stringProp("Your user id"),
				"display_name": stringProp("Name shown to the opponent (optional)"),
			},
			Required: []string{"user_id"},
		},
	}, c.handleMatchmakingJoin)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "matchmaking_leave",
		Description: "Stop searching for an opponent",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": stringProp("Your user id"),
			},
			Required: []string{"user_id"},
		},
	}, c.handleMatchmakingLeave)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "matchmaking_status",
		Description: "Check whether you are still searching and how many players wait",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": stringProp("Your user id"),
			},
			Required: []string{"user_id"},
		},
	}, c.handleMatchmakingStatus)

	// Invitations
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "invite_friend",
		Description: "Invite a friend to a game; you play X once they accept",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id":   stringProp("Your user id"),
				"friend_id": stringProp("The friend to invite"),
				"preset":    stringProp("Board preset id (optional)"),
				"width":     integerProp("Board width (optional)"),
				"height":    integerProp("Board height (optional)"),
			},
			Required: []string{"user_id", "friend_id"},
		},
	}, c.handleInviteFriend)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "answer_invitation",
		Description: "Accept or decline a game invitation or rematch offer",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": stringProp("The invited session"),
				"user_id":    stringProp("Your user id"),
				"accept": map[string]interface{}{
					"type":        "boolean",
					"description": "true to accept, false to decline",
				},
				"rematch": map[string]interface{}{
					"type":        "boolean",
					"description": "true when answering a rematch offer",
				},
			},
			Required: []string{"session_id", "user_id", "accept"},
		},
	}, c.handleAnswerInvitation)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "request_rematch",
		Description: "Ask a former opponent for another game. If they already asked you, the rematch starts",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id":             stringProp("Your user id"),
				"opponent_id":         stringProp("Your former opponent"),
				"previous_session_id": stringProp("The finished session, to reuse its board size (optional)"),
			},
			Required: []string{"user_id", "opponent_id"},
		},
	}, c.handleRequestRematch)

	// Presets
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_presets",
		Description: "List the available board presets",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListPresets)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// ServeHTTP answers JSON-RPC messages posted to the /mcp endpoint
func (c *Client) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	response := c.mcpServer.HandleMessage(r.Context(), body)

	w.Header().Set("Content-Type", "application/json")
	if response == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	responseData, err := json.Marshal(response)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Write(responseData)
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			if code := errResp["code"]; code != "" {
				return fmt.Errorf("%s: %s", code, msg)
			}
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

// arguments returns the tool arguments, or an empty map
func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

// intArg reads a JSON number argument
func intArg(args map[string]interface{}, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	mode, _ := args["mode"].(string)
	preset, _ := args["preset"].(string)
	chosenMark, _ := args["chosen_mark"].(string)
	playerID, _ := args["player_id"].(string)
	opponentID, _ := args["opponent_id"].(string)

	body := map[string]interface{}{
		"mode":        mode,
		"preset":      preset,
		"chosen_mark": chosenMark,
		"first":       map[string]string{"id": playerID},
		"second":      map[string]string{"id": opponentID},
	}
	if w, ok := intArg(args, "width"); ok {
		body["width"] = w
	}
	if h, ok := intArg(args, "height"); ok {
		body["height"] = h
	}

	var sess engine.Session
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &sess); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText("Created session\n\n" + formatSession(&sess)), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)

	var sess engine.Session
	if err := c.apiCall(ctx, "GET", fmt.Sprintf("/api/sessions/%s", sessionID), nil, &sess); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSession(&sess)), nil
}

func (c *Client) handleMakeMove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	participantID, _ := args["participant_id"].(string)
	cell, ok := intArg(args, "cell")
	if !ok {
		return mcp.NewToolResultError("cell must be a number"), nil
	}

	body := map[string]interface{}{
		"participant_id": participantID,
		"cell":           cell,
	}

	var sess engine.Session
	if err := c.apiCall(ctx, "POST", fmt.Sprintf("/api/sessions/%s/moves", sessionID), body, &sess); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Placed on cell %d\n\n%s", cell, formatSession(&sess))), nil
}

func (c *Client) handleForfeit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	participantID, _ := args["participant_id"].(string)

	var sess engine.Session
	err := c.apiCall(ctx, "POST", fmt.Sprintf("/api/sessions/%s/forfeit", sessionID),
		map[string]string{"participant_id": participantID}, &sess)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText("You resigned.\n\n" + formatSession(&sess)), nil
}

func (c *Client) handleMatchmakingJoin(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	userID, _ := args["user_id"].(string)
	displayName, _ := args["display_name"].(string)

	var result matchmaking.JoinResult
	err := c.apiCall(ctx, "POST", "/api/matchmaking/join",
		map[string]string{"user_id": userID, "display_name": displayName}, &result)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if result.Status != matchmaking.StatusMatched || result.Session == nil {
		return mcp.NewToolResultText("Searching for an opponent. Check back with matchmaking_status."), nil
	}
	opponent := "your opponent"
	if result.Opponent != nil && result.Opponent.DisplayName != "" {
		opponent = result.Opponent.DisplayName
	}
	return mcp.NewToolResultText(fmt.Sprintf("Matched with %s. You play %s.\n\n%s",
		opponent, result.YourMark, formatSession(result.Session))), nil
}

func (c *Client) handleMatchmakingLeave(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	userID, _ := args["user_id"].(string)

	var result struct {
		Left bool `json:"left"`
	}
	if err := c.apiCall(ctx, "POST", "/api/matchmaking/leave", map[string]string{"user_id": userID}, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if !result.Left {
		return mcp.NewToolResultText("You were not searching."), nil
	}
	return mcp.NewToolResultText("Stopped searching."), nil
}

func (c *Client) handleMatchmakingStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	userID, _ := args["user_id"].(string)

	var status matchmaking.Status
	if err := c.apiCall(ctx, "GET", "/api/matchmaking/status?user_id="+userID, nil, &status); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Searching: %t\nPlayers waiting: %d",
		status.IsSearching, status.QueueDepth)), nil
}

func (c *Client) handleInviteFriend(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	userID, _ := args["user_id"].(string)
	friendID, _ := args["friend_id"].(string)
	preset, _ := args["preset"].(string)

	body := negotiation.InviteRequest{InviterID: userID, InviteeID: friendID, Preset: preset}
	body.Width, _ = intArg(args, "width")
	body.Height, _ = intArg(args, "height")

	var sess engine.Session
	if err := c.apiCall(ctx, "POST", "/api/invitations", body, &sess); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Invited %s. The game starts once they accept.\n\n%s",
		friendID, formatSession(&sess))), nil
}

func (c *Client) handleAnswerInvitation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	userID, _ := args["user_id"].(string)
	accept, _ := args["accept"].(bool)
	rematch, _ := args["rematch"].(bool)

	path := fmt.Sprintf("/api/invitations/%s/", sessionID)
	if rematch {
		path = fmt.Sprintf("/api/sessions/%s/rematch/", sessionID)
	}
	body := map[string]string{"user_id": userID}

	if !accept {
		if err := c.apiCall(ctx, "POST", path+"decline", body, nil); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Declined."), nil
	}

	var sess engine.Session
	if err := c.apiCall(ctx, "POST", path+"accept", body, &sess); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Accepted.\n\n" + formatSession(&sess)), nil
}

func (c *Client) handleRequestRematch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	userID, _ := args["user_id"].(string)
	opponentID, _ := args["opponent_id"].(string)
	previousID, _ := args["previous_session_id"].(string)

	body := negotiation.RematchRequest{RequesterID: userID, OpponentID: opponentID, PreviousSessionID: previousID}

	var result negotiation.RematchResult
	if err := c.apiCall(ctx, "POST", "/api/rematch", body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if result.Status == negotiation.RematchAccepted {
		return mcp.NewToolResultText("Both of you asked for a rematch. It has started.\n\n" + formatSession(result.Session)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Rematch offered to %s.\n\n%s", opponentID, formatSession(result.Session))), nil
}

func (c *Client) handleListPresets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Presets []config.PresetInfo `json:"presets"`
		Default string              `json:"default"`
	}
	if err := c.apiCall(ctx, "GET", "/api/presets", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Board presets (%d):\n\n", len(response.Presets)))
	for _, p := range response.Presets {
		marker := ""
		if p.ID == response.Default {
			marker = " (default)"
		}
		b.WriteString(fmt.Sprintf("- %s%s: %s, %dx%d, %d in a row\n",
			p.ID, marker, p.Name, p.Width, p.Height, p.RunLength))
	}
	return mcp.NewToolResultText(b.String()), nil
}

// formatSession renders the board and status for a language model
func formatSession(sess *engine.Session) string {
	if sess == nil {
		return "No session available"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Session: %s (%s)\n", sess.ID, sess.Mode))
	b.WriteString(fmt.Sprintf("Board: %dx%d, %d in a row wins\n", sess.Width, sess.Height,
		engine.RunLength(sess.Width, sess.Height)))
	for _, p := range sess.Participants {
		b.WriteString(fmt.Sprintf("%s: %s (%s, %s)\n", p.Mark, p.DisplayName, p.ID, p.Kind))
	}
	b.WriteString("\n")

	cellWidth := len(fmt.Sprint(len(sess.Board) - 1))
	for row := 0; row < sess.Height; row++ {
		cells := make([]string, sess.Width)
		for col := 0; col < sess.Width; col++ {
			idx := row*sess.Width + col
			if idx >= len(sess.Board) {
				break
			}
			if mark := sess.Board[idx]; mark != engine.Empty {
				cells[col] = fmt.Sprintf("%*s", cellWidth, mark)
			} else {
				cells[col] = fmt.Sprintf("%*d", cellWidth, idx)
			}
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch {
	case sess.Status == engine.StatusInProgress && sess.Mode == engine.ModeVsRemoteHuman && !sess.InvitationAccepted:
		b.WriteString("Waiting for the invitation to be accepted")
	case sess.Status == engine.StatusInProgress:
		b.WriteString(fmt.Sprintf("Turn: %s", sess.CurrentTurn))
	case sess.Status == engine.StatusDraw:
		b.WriteString("Result: draw")
	default:
		winner := sess.Participant(sess.WinnerParticipantID)
		name := sess.WinnerParticipantID
		if winner != nil {
			name = winner.DisplayName
		}
		b.WriteString(fmt.Sprintf("Result: %s (%s wins)", sess.Status, name))
		if len(sess.WinningLine) > 0 {
			b.WriteString(fmt.Sprintf(", line %v", sess.WinningLine))
		}
	}
	return b.String()
}
