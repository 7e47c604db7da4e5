// Package rpc pins methods to the controller or peer side of a channel and dispatches
// invocations to wherever the method must run.
//
// Each state class owns a Table of Methods. A Dispatcher serves `<uid>-call` messages
// for that table and proxies outbound calls: when the local side is the pinned side the
// handler runs synchronously, otherwise the call is sent with a fresh correlation id and
// completes when `<method>-<id>` arrives with `(result, error|null)`.
package rpc
