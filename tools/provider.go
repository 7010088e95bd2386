// Package tools provides capability providers: components that expose named
// tools the model may invoke during a conversation.
package tools

import "context"

// Definition describes one tool a provider exposes to the model.
// Definitions are published once during Provider.Init and are immutable
// afterward.
type Definition struct {
	// Name is the tool's unique identifier within a registry.
	Name string

	// Description is a human-readable description for the LLM.
	Description string

	// Parameters is the JSON schema for the tool's arguments.
	Parameters map[string]any
}

// Provider defines the interface all capability providers implement.
// A provider owns one or more tools and executes them end-to-end.
type Provider interface {
	// Name identifies the provider in logs and registry diagnostics.
	Name() string

	// Init prepares the provider and publishes its tool definitions.
	// It must be called before Definitions or Call.
	Init(ctx context.Context) error

	// Definitions returns the tools this provider declared during Init.
	Definitions() []Definition

	// Call executes the named tool with the given arguments. Errors are
	// data: validation and network failures come back as result text so
	// they can be serialized into the conversation, never as a Go error.
	Call(ctx context.Context, tool string, args map[string]any) string

	// Close releases any long-lived resources (network sessions).
	Close() error
}
