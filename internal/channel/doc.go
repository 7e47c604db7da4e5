// Package channel defines the message channel contract the replication core is built on.
//
// A Channel is an asynchronous, ordered, at-least-once named-message transport between
// one controller process and any number of peer processes. The core needs only four
// capabilities from it:
//
//   - IsController reports which authority this process plays.
//   - On registers a persistent handler for a message name.
//   - Once registers a handler that fires for the first matching message only.
//   - Send delivers a named message to the other side(s). A controller broadcasts to
//     every peer; a peer sends to the controller.
//
// Handlers receive a Sender that replies to the process the message came from, and the
// message arguments as JSON-encoded Args. Encoding every argument keeps in-process and
// networked bindings behaviourally identical: nothing aliases across the boundary.
//
// The Router type implements the handler table shared by all bindings, and EncodeFrame /
// DecodeFrame implement the `[name, arg0, arg1, ...]` JSON framing used on byte transports.
//
// Bindings live in sub-packages: memory (in-process hub), natschan (NATS subjects) and
// wschan (websocket server/client).
package channel
