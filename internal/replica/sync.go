package replica

import (
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/statebridge/internal/logfields"
)

// outbound is one push captured under the runtime lock.
type outbound struct {
	inst       *Instance
	generation uint64
	fields     map[string]any
}

// markPendingLocked adds inst to the PendingSet. Callers hold rt.mu.
func (rt *Runtime) markPendingLocked(inst *Instance) {
	if inst.pending {
		return
	}
	inst.pending = true
	rt.pending = append(rt.pending, inst)
}

// takeLocked captures the push of a pending instance and clears its flags.
func takeLocked(inst *Instance) outbound {
	inst.pending = false
	inst.advanced = false
	return outbound{inst: inst, generation: inst.generation, fields: cloneFields(inst.payload)}
}

// Flush drains the PendingSet, sending one push per pending instance. Peers that
// have not been hydrated keep their writes pending. Drains never overlap.
func (rt *Runtime) Flush() {
	rt.flushMu.Lock()
	defer rt.flushMu.Unlock()

	start := time.Now()
	rt.mu.Lock()
	batch := rt.pending
	rt.pending = nil
	out := make([]outbound, 0, len(batch))
	for _, inst := range batch {
		if !inst.pending {
			continue
		}
		if !inst.controller && inst.state != Synced {
			rt.pending = append(rt.pending, inst)
			continue
		}
		out = append(out, takeLocked(inst))
	}
	rt.mu.Unlock()

	if len(out) == 0 {
		return
	}
	for _, o := range out {
		rt.send(o, ReasonSync)
	}
	rt.recorder.ObserveFlush(time.Since(start), len(out))
}

func (rt *Runtime) flushInstance(inst *Instance) {
	rt.flushInstanceReason(inst, ReasonSync)
}

// flushInstanceReason sends inst immediately, bypassing coalescing.
func (rt *Runtime) flushInstanceReason(inst *Instance, reason string) {
	rt.flushMu.Lock()
	defer rt.flushMu.Unlock()

	rt.mu.Lock()
	if !inst.pending || (!inst.controller && inst.state != Synced) {
		rt.mu.Unlock()
		return
	}
	for i, p := range rt.pending {
		if p == inst {
			rt.pending = append(rt.pending[:i:i], rt.pending[i+1:]...)
			break
		}
	}
	o := takeLocked(inst)
	rt.mu.Unlock()

	rt.send(o, reason)
}

// send delivers a push. Controller pushes are broadcast and journaled.
func (rt *Runtime) send(o outbound, reason string) {
	inst := o.inst
	if err := inst.ch.Send(inst.uid, o.generation, o.fields); err != nil {
		inst.logger.Warn("Failed to send state push",
			logfields.Generation(o.generation),
			logfields.Error(err))
		return
	}
	rt.recorder.IncPushSent(inst.uid)
	inst.logger.Debug("Sent state push", logfields.Generation(o.generation), logfields.Reason(reason))

	if !inst.controller {
		return
	}
	raw, err := json.Marshal(o.fields)
	if err != nil {
		return
	}
	rt.record(inst.uid, o.generation, reason, raw)
}
