package rpc

import (
	"encoding/json"
	"sync"

	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
)

// RemoteError is the wire form of a failure raised by the executing side.
type RemoteError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func remoteErrorFrom(err error) RemoteError {
	name := "Error"
	if ce, ok := ferrors.AsClassified(err); ok {
		name = string(ce.Category())
		return RemoteError{Name: name, Message: ce.Message()}
	}
	return RemoteError{Name: name, Message: err.Error()}
}

// Call is a pending or completed method invocation.
type Call struct {
	Method string
	ID     string

	done   chan struct{}
	once   sync.Once
	result json.RawMessage
	err    error
}

func newCall(method, id string) *Call {
	return &Call{Method: method, ID: id, done: make(chan struct{})}
}

func (c *Call) complete(result json.RawMessage, err error) bool {
	completed := false
	c.once.Do(func() {
		c.result = result
		c.err = err
		completed = true
		close(c.done)
	})
	return completed
}

// Done is closed once the call has completed.
func (c *Call) Done() <-chan struct{} { return c.done }

// Wait blocks until the call completes and returns its error.
func (c *Call) Wait() error {
	<-c.done
	return c.err
}

// Result blocks until the call completes and returns the raw JSON result.
func (c *Call) Result() (json.RawMessage, error) {
	<-c.done
	return c.result, c.err
}

// Decode blocks until the call completes and unmarshals the result into v.
// A nil v only waits.
func (c *Call) Decode(v any) error {
	raw, err := c.Result()
	if err != nil {
		return err
	}
	if v == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "decode call result").
			WithContext("method", c.Method).
			WithContext("correlation_id", c.ID).
			Build()
	}
	return nil
}
