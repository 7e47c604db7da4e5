// Package handlers implements the statebridge HTTP endpoints: health, state
// snapshots and journal history.
package handlers
