package metrics

import "time"

// PushOutcome labels how a received `<uid>` message was handled.
type PushOutcome string

const (
	PushAccepted PushOutcome = "accepted" // controller merged a peer push
	PushStale    PushOutcome = "stale"    // controller rejected a push with a mismatched generation
	PushApplied  PushOutcome = "applied"  // peer merged a controller push
	PushHydrated PushOutcome = "hydrated" // peer replaced its payload
)

// CallOutcome labels how an RPC invocation completed.
type CallOutcome string

const (
	CallSuccess     CallOutcome = "success"
	CallRemoteError CallOutcome = "remote_error"
	CallCanceled    CallOutcome = "canceled"
	CallLocal       CallOutcome = "local"
)

// Recorder defines the observability hooks of the replication core.
type Recorder interface {
	IncPushSent(uid string)
	IncPushReceived(uid string, outcome PushOutcome)
	IncHydrationServed(uid string)
	ObserveFlush(d time.Duration, size int)
	IncCall(method string, outcome CallOutcome)
	ObserveCallDuration(method string, d time.Duration)
	AddInflightCalls(delta int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncPushSent(string)                        {}
func (NoopRecorder) IncPushReceived(string, PushOutcome)       {}
func (NoopRecorder) IncHydrationServed(string)                 {}
func (NoopRecorder) ObserveFlush(time.Duration, int)           {}
func (NoopRecorder) IncCall(string, CallOutcome)               {}
func (NoopRecorder) ObserveCallDuration(string, time.Duration) {}
func (NoopRecorder) AddInflightCalls(int)                      {}
