// Package websocket pushes game notifications to connected players.
//
// A client connects to /ws?user=<id> and joins that user's group. After
// loading a session it sends
//
//	{"action":"join_session","session_id":"..."}
//
// to receive session_updated snapshots for it, and
//
//	{"action":"leave_session","session_id":"..."}
//
// when navigating away. Leaving a session group, or disconnecting while in
// one, tells the remaining members with an opponent_left event.
//
// Outgoing frames are single notify.Event JSON objects. The hub also sends
// connected, joined_session and left_session acknowledgements, and an error
// event for malformed client messages.
//
// Hub implements notify.Publisher. Group bookkeeping and delivery run on the
// single Run goroutine; each connection has a read pump and a write pump.
//
// Usage:
//
//	hub := websocket.NewHub(logger)
//	go hub.Run(ctx)
//	router.HandleFunc("/ws", hub.ServeWS)
package websocket
