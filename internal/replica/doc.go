// Package replica replicates one logical state object per class between a controller
// process and any number of peer processes over a channel.Channel.
//
// A Runtime owns the registry of live instances, the pending set drained by the sync
// tick, the correlation id source for pinned methods and the ambient dependencies
// (logger, metrics recorder, optional journal). Classes are declared with Define and
// bound to one channel and one uid:
//
//	rt := replica.NewRuntime()
//	counter := replica.Define[Counter](rt, ch, replica.WithUID("counter"))
//	_ = counter.SetState(replica.Patch{"count": 5})
//
// Three message names are derived from the uid: `<uid>` carries pushes and hydration
// replies, `<uid>-init` carries hydration requests, and `<uid>-call` carries pinned
// method invocations.
//
// Peers hydrate by sending `<uid>-init` until the controller answers with
// `(generation, payload)`. A peer push whose generation differs from the controller's
// is discarded and the peer is re-hydrated; matching pushes are merged and broadcast on
// the next tick. The controller advances its generation once per flush window for its
// own writes and once for every accepted peer push, so the tick broadcasts the already
// advanced value.
package replica
