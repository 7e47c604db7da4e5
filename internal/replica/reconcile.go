package replica

import (
	"context"
	"encoding/json"
	"log/slog"

	"git.home.luguber.info/inful/statebridge/internal/channel"
	"git.home.luguber.info/inful/statebridge/internal/logfields"
	"git.home.luguber.info/inful/statebridge/internal/metrics"
)

// InitName is the hydration request name for uid.
func InitName(uid string) string { return uid + "-init" }

// wireLocked subscribes the instance to its message names. Callers hold rt.mu.
func (inst *Instance) wireLocked() {
	inst.unsubs = append(inst.unsubs, inst.ch.On(inst.uid, inst.onPush))
	if inst.controller {
		inst.unsubs = append(inst.unsubs, inst.ch.On(InitName(inst.uid), inst.onInit))
	}
	inst.dispatcher.Listen()
}

func (inst *Instance) unwire() {
	inst.rt.mu.Lock()
	unsubs := inst.unsubs
	inst.unsubs = nil
	if inst.stopLoop != nil {
		inst.stopLoop()
		inst.stopLoop = nil
	}
	inst.rt.mu.Unlock()

	for _, stop := range unsubs {
		stop()
	}
	inst.dispatcher.Close()
}

// beginHydrationLocked moves a peer to AwaitingInit and returns the context of its
// request loop. Callers hold rt.mu, add the loop to rt.loops before releasing it,
// and must start hydrationLoop.
func (inst *Instance) beginHydrationLocked() context.Context {
	ctx, cancel := context.WithCancel(inst.rt.ctx)
	inst.state = AwaitingInit
	inst.stopLoop = cancel
	return ctx
}

// hydrationLoop sends `<uid>-init` until a hydration reply arrives, the policy is
// exhausted, or the runtime closes.
func (inst *Instance) hydrationLoop(ctx context.Context) {
	defer inst.rt.loops.Done()
	policy := inst.rt.initRetry

	for retries := 0; ; retries++ {
		inst.requestInit()
		if policy.Exhausted(retries) {
			inst.rt.mu.Lock()
			if inst.state == AwaitingInit && ctx.Err() == nil {
				inst.state = Uninitialized
				if inst.stopLoop != nil {
					inst.stopLoop()
					inst.stopLoop = nil
				}
			}
			inst.rt.mu.Unlock()
			inst.logger.Warn("Hydration retries exhausted", slog.Int("attempts", retries+1))
			return
		}
		if err := policy.Wait(ctx, retries+1); err != nil {
			return
		}
	}
}

func (inst *Instance) requestInit() {
	if err := inst.ch.Send(InitName(inst.uid)); err != nil {
		inst.logger.Debug("Hydration request not delivered", logfields.Error(err))
	}
}

// onInit serves a hydration request. Controller only.
func (inst *Instance) onInit(from channel.Sender, _ channel.Args) {
	inst.rt.mu.Lock()
	if inst.rt.closed {
		inst.rt.mu.Unlock()
		return
	}
	inst.generation = nextGeneration(inst.generation)
	g := inst.generation
	fields := cloneFields(inst.payload)
	inst.rt.mu.Unlock()

	inst.rt.recorder.IncHydrationServed(inst.uid)
	inst.reply(from, g, fields, ReasonHydrate)
}

// reply sends (generation, fields, true) to a single peer and journals it. The
// trailing flag marks the payload as a full replacement.
func (inst *Instance) reply(to channel.Sender, g uint64, fields map[string]any, reason string) {
	if err := to.Send(inst.uid, g, fields, true); err != nil {
		inst.logger.Warn("Failed to send state to peer",
			logfields.Generation(g),
			logfields.Error(err))
		return
	}
	inst.logger.Debug("Sent full state to peer", logfields.Generation(g), logfields.Reason(reason))
	if raw, err := json.Marshal(fields); err == nil {
		inst.rt.record(inst.uid, g, reason, raw)
	}
}

// onPush handles a `<uid>` message carrying (generation, payload[, full]).
func (inst *Instance) onPush(from channel.Sender, args channel.Args) {
	var g uint64
	if err := args.Decode(0, &g); err != nil {
		inst.logger.Warn("Dropping malformed push", logfields.Error(err))
		return
	}
	fields, err := toFields(args.Raw(1))
	if err != nil {
		inst.logger.Warn("Dropping malformed push", logfields.Generation(g), logfields.Error(err))
		return
	}

	if inst.controller {
		inst.acceptPush(from, g, fields)
		return
	}
	full := isFullState(args)

	inst.rt.mu.Lock()
	if inst.rt.closed {
		inst.rt.mu.Unlock()
		return
	}
	var outcome metrics.PushOutcome
	if inst.state != Synced || full {
		inst.hydrateLocked(g, fields)
		outcome = metrics.PushHydrated
	} else {
		inst.applyPushLocked(g, fields)
		outcome = metrics.PushApplied
	}
	n := inst.notificationLocked()
	inst.rt.mu.Unlock()

	inst.rt.recorder.IncPushReceived(inst.uid, outcome)
	inst.logger.Debug("Applied controller state", logfields.Generation(g), logfields.Outcome(string(outcome)))
	inst.deliver(n)
}

// isFullState reports whether a push carries the full-replacement flag sent with
// hydration and stale-write replies.
func isFullState(args channel.Args) bool {
	if args.IsNull(2) {
		return false
	}
	var full bool
	return args.Decode(2, &full) == nil && full
}

// hydrateLocked replaces the payload with the authoritative one and ends the
// hydration loop. Unflushed local writes are discarded, including those of a
// rejected push.
func (inst *Instance) hydrateLocked(g uint64, fields map[string]any) {
	inst.payload = fields
	inst.generation = g
	inst.state = Synced
	inst.pending = false
	if inst.stopLoop != nil {
		inst.stopLoop()
		inst.stopLoop = nil
	}
}

// applyPushLocked merges a controller push. Peers never reject controller state.
func (inst *Instance) applyPushLocked(g uint64, fields map[string]any) {
	merge(inst.payload, fields)
	inst.generation = g
}

// acceptPush applies the generation compare-and-reject rule on the controller.
func (inst *Instance) acceptPush(from channel.Sender, g uint64, fields map[string]any) {
	inst.rt.mu.Lock()
	if inst.rt.closed {
		inst.rt.mu.Unlock()
		return
	}
	if g != inst.generation {
		current := inst.generation
		full := cloneFields(inst.payload)
		inst.rt.mu.Unlock()

		inst.rt.recorder.IncPushReceived(inst.uid, metrics.PushStale)
		inst.logger.Debug("Rejected stale push",
			logfields.Generation(g),
			slog.Uint64("controller_generation", current))
		inst.reply(from, current, full, ReasonRehydrate)
		return
	}

	merge(inst.payload, fields)
	inst.generation = nextGeneration(inst.generation)
	inst.advanced = true
	inst.rt.markPendingLocked(inst)
	n := inst.notificationLocked()
	inst.rt.mu.Unlock()

	inst.rt.recorder.IncPushReceived(inst.uid, metrics.PushAccepted)
	inst.deliver(n)
}
