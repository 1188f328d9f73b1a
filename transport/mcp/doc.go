// Package mcp exposes Grid Duel to AI agents over the Model Context Protocol.
//
// The Client is a thin proxy: every tool call becomes a REST request against
// a running Grid Duel server, and session responses are rendered as a text
// board with cell numbers in empty squares.
//
// MCP Tools:
//   - create_session, get_session, make_move, forfeit
//   - matchmaking_join, matchmaking_leave, matchmaking_status
//   - invite_friend, answer_invitation, request_rematch
//   - list_presets
//
// Transport Modes:
//
// The same server is reachable over stdio (the stdio-mcp command) and over
// HTTP, where Client.ServeHTTP answers JSON-RPC messages posted to /mcp.
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	router.Handle("/mcp", client)
//
//	// or, for stdio
//	server.ServeStdio(client.GetMCPServer())
package mcp
