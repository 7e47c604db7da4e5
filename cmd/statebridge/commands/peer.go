package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"git.home.luguber.info/inful/statebridge/internal/config"
	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
	"git.home.luguber.info/inful/statebridge/internal/logfields"
	"git.home.luguber.info/inful/statebridge/internal/replica"
)

const hydrationPoll = 20 * time.Millisecond

// PeerCmd implements the 'peer' command.
type PeerCmd struct {
	Set     []string      `short:"s" sep:"none" help:"Patch the counter as key=value; values parse as JSON, else string (repeatable)"`
	Call    []string      `sep:"none" help:"Invoke a pinned method as name[:arg,arg]; prefix static. for class methods (repeatable)"`
	Watch   bool          `short:"w" help:"Keep running and print every change until interrupted"`
	Timeout time.Duration `help:"How long to wait for hydration" default:"10s"`
}

func (p *PeerCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root, config.RolePeer)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return runPeer(ctx, cfg, g.Logger, g.Out, p)
}

// methodCall is one parsed --call flag.
type methodCall struct {
	name   string
	static bool
	args   []any
}

func runPeer(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer, p *PeerCmd) error {
	patches, err := parseAssignments(p.Set)
	if err != nil {
		return err
	}
	calls, err := parseCalls(p.Call)
	if err != nil {
		return err
	}

	tr, err := openTransport(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := tr.close(); cerr != nil {
			logger.Debug("Transport close failed", logfields.Error(cerr))
		}
	}()

	rt := replica.NewRuntime(replica.WithConfig(cfg), replica.WithLogger(logger))
	defer func() { _ = rt.Close() }()

	counter, err := defineCounter(rt, tr.ch)
	if err != nil {
		return err
	}
	inst, err := counter.Instance()
	if err != nil {
		return err
	}
	if err := waitSynced(ctx, inst, p.Timeout); err != nil {
		return err
	}

	w := &lockedWriter{w: out}
	if err := printSnapshot(w, counter); err != nil {
		return err
	}

	if p.Watch {
		off, err := counter.OnChange(func(c Counter) {
			if perr := printCounter(w, inst.Generation(), c); perr != nil {
				logger.Warn("Print failed", logfields.Error(perr))
			}
		})
		if err != nil {
			return err
		}
		defer off()
	}

	if len(patches) > 0 {
		if err := counter.SetState(patches, replica.Immediate()); err != nil {
			return err
		}
	}

	for _, c := range calls {
		var result json.RawMessage
		if c.static {
			err = counter.CallStatic(ctx, c.name, &result, c.args...)
		} else {
			err = counter.Call(ctx, c.name, &result, c.args...)
		}
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s -> %s\n", c.name, result); err != nil {
			return err
		}
	}

	if !p.Watch {
		return nil
	}
	select {
	case <-ctx.Done():
	case <-tr.done:
		return ferrors.TransportError("controller connection closed").Build()
	}
	return nil
}

func waitSynced(ctx context.Context, inst *replica.Instance, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tick := time.NewTicker(hydrationPoll)
	defer tick.Stop()
	for inst.State() != replica.Synced {
		select {
		case <-ctx.Done():
			return ferrors.TransportError("peer did not hydrate").
				WithContext("uid", inst.UID()).
				WithContext("state", inst.State().String()).
				WithContext("timeout", timeout.String()).
				Build()
		case <-tick.C:
		}
	}
	return nil
}

func printSnapshot(w io.Writer, counter *replica.Class[Counter]) error {
	c, err := counter.Get()
	if err != nil {
		return err
	}
	g, err := counter.Generation()
	if err != nil {
		return err
	}
	return printCounter(w, g, c)
}

// parseAssignments turns key=value flags into one patch.
func parseAssignments(raw []string) (replica.Patch, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	patch := make(replica.Patch, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, ferrors.ValidationError("patch must be key=value").
				WithContext("set", kv).
				Build()
		}
		patch[key] = parseValue(value)
	}
	return patch, nil
}

// parseCalls parses name[:arg,arg] flags. A static. prefix selects class methods.
func parseCalls(raw []string) ([]methodCall, error) {
	calls := make([]methodCall, 0, len(raw))
	for _, entry := range raw {
		name, rest, hasArgs := strings.Cut(entry, ":")
		c := methodCall{name: strings.TrimSpace(name)}
		if after, ok := strings.CutPrefix(c.name, "static."); ok {
			c.name, c.static = after, true
		}
		if c.name == "" {
			return nil, ferrors.ValidationError("call must name a method").
				WithContext("call", entry).
				Build()
		}
		if hasArgs && rest != "" {
			for _, arg := range strings.Split(rest, ",") {
				c.args = append(c.args, parseValue(strings.TrimSpace(arg)))
			}
		}
		calls = append(calls, c)
	}
	return calls, nil
}

// parseValue decodes s as JSON, falling back to the raw string.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

// lockedWriter serializes listener output with command output.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
