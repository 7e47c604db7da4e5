package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"git.home.luguber.info/inful/statebridge/internal/channel"
	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
	"git.home.luguber.info/inful/statebridge/internal/replica"
	"git.home.luguber.info/inful/statebridge/internal/version"
)

// CounterUID is the wire name of the demo state.
const CounterUID = "counter"

// Counter is the demo state replicated between the controller and peer commands.
type Counter struct {
	Count int    `json:"count"`
	Label string `json:"label"`
}

func defineCounter(rt *replica.Runtime, ch channel.Channel) (*replica.Class[Counter], error) {
	counter := replica.Define[Counter](rt, ch,
		replica.WithUID(CounterUID),
		replica.WithDefaults(Counter{Label: "statebridge"}))

	// multiply scales the authoritative count and returns the new value.
	if err := counter.Controller("multiply", func(_ context.Context, factor int) (int, error) {
		cur, err := counter.Get()
		if err != nil {
			return 0, err
		}
		next := cur.Count * factor
		if err := counter.SetState(replica.Patch{"count": next}); err != nil {
			return 0, err
		}
		return next, nil
	}); err != nil {
		return nil, err
	}

	if err := counter.Controller("version", func(context.Context) (string, error) {
		return version.String(), nil
	}, replica.Static()); err != nil {
		return nil, err
	}

	if err := counter.Err(); err != nil {
		return nil, err
	}
	return counter, nil
}

func printCounter(w io.Writer, generation uint64, c Counter) error {
	data, err := json.Marshal(c)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "encode counter").Build()
	}
	_, err = fmt.Fprintf(w, "%s g=%d %s\n", CounterUID, generation, data)
	return err
}
