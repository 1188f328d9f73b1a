// Package service implements the session engine for Grid Duel.
//
// GameService creates sessions, applies moves, plays the built-in bot,
// handles forfeits and deletion. It sits between the transports (HTTP,
// WebSocket, MCP) and the board engine, and it is the only writer of
// sessions.
//
// Concurrency:
//
// Every read-modify-write of a session runs under a per-session lock, so two
// moves for the same session in one process are totally ordered. Across
// processes the store's version check rejects the slower writer; the service
// retries once on a fresh read, which then fails with WRONG_TURN or
// CELL_OCCUPIED if the other move already landed.
//
// Bot moves run asynchronously after a short delay. A pending bot move is
// cancelled when its session is forfeited or deleted, and Close cancels all
// of them.
//
// Usage:
//
//	svc := service.NewGameService(store, presets,
//		service.WithPublisher(hub),
//		service.WithLogger(logger),
//	)
//	defer svc.Close()
//
//	sess, err := svc.CreateSession(ctx, service.CreateRequest{Mode: engine.ModeVsBot})
//	sess, err = svc.ApplyMove(ctx, sess.ID, sess.Participants[0].ID, 4)
package service
