// Package session stores game sessions on one of two tiers.
//
// Tiers:
//
// Ephemeral keeps vs_bot and vs_local_human sessions in memory. Entries expire
// a fixed time after creation (24h by default) and are swept lazily on access,
// at most once per sweep interval, or explicitly through Sweep.
//
// Durable keeps vs_remote_human sessions across restarts. SQLitePersistence
// and FilePersistence both implement it.
//
// TierFor is the only place that maps a mode to a tier. Store routes writes
// through it and reads from ephemeral first, then durable.
//
// Concurrency:
//
// Every tier clones sessions on the way in and out, so callers never share a
// board slice with the store. Put is optimistic: a session read at version N
// can only be written back while the stored copy is still at N, otherwise the
// write fails with STALE_WRITE and the caller re-reads.
//
// Usage:
//
//	db, _ := storage.Open(ctx, "gridduel.db")
//	store := session.NewStore(session.NewEphemeral(), session.NewSQLitePersistence(db))
//
//	sess := engine.NewSession(id, 3, 3, engine.ModeVsBot, participants, time.Now())
//	if err := store.Put(ctx, sess); err != nil { ... }
//	sess, err := store.Get(ctx, id)
package session
