// Package journal persists the authoritative state a controller sends to its peers.
//
// Every broadcast, hydration reply, forced re-hydration and reset is appended as one
// entry so operators can inspect how a replicated value evolved. The store is backed
// by SQLite through the pure-Go modernc.org/sqlite driver.
package journal
