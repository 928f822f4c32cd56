package core

import (
	"errors"
	"sync"
)

// Action tells the dispatch loop what goes back on the chain after a
// handler ran.
type Action uint8

const (
	// ActForward forwards the original line unchanged
	ActForward Action = iota

	// ActConsume puts nothing back on the chain
	ActConsume

	// ActRewrite forwards the rewritten message instead
	ActRewrite
)

// Handler processes a message addressed to this node (directly or by
// broadcast).
type Handler func(n *Node, m Message) (Action, Message, error)

var errUnknownCommand = errors.New("dispatch: unknown command")

// CommandRegistry maps chain command tokens to handlers.
type CommandRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewCommandRegistry creates an empty registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{handlers: make(map[string]Handler)}
}

// Register adds a command handler. Re-registering replaces the old one.
func (r *CommandRegistry) Register(name string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Lookup retrieves a handler by command token.
func (r *CommandRegistry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Dispatch calls the handler for m. Unknown commands are a protocol
// error: rejected locally, never forwarded.
func (r *CommandRegistry) Dispatch(n *Node, m Message) (Action, Message, error) {
	h, ok := r.Lookup(m.Command)
	if !ok {
		return ActConsume, Message{}, errUnknownCommand
	}
	return h(n, m)
}

// Count returns the number of registered commands.
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// defaultRegistry builds the chain command set every node understands.
func defaultRegistry() *CommandRegistry {
	r := NewCommandRegistry()
	r.Register(CmdInit, handleInit)
	r.Register(CmdReinit, handleReinit)
	r.Register(CmdProgram, handleProgram)
	r.Register(CmdServo, handleServo)
	r.Register(CmdHealthcheck, handleHealthcheck)
	r.Register(CmdCalibration, handleCalibration)
	r.Register(CmdOvercurrent, handleShutdownToken)
	r.Register(CmdSensorFail, handleShutdownToken)
	r.Register(CmdBlindTimeout, handleShutdownToken)
	r.Register(CmdDac, handleDac)
	return r
}
