// Package mcpwire is the root of the wire-protocol core, re-exporting the
// most commonly used constructors from the sub-packages.
package mcpwire

import (
	"github.com/mcpwire/mcpwire/pkg/protocol"
	"github.com/mcpwire/mcpwire/pkg/transport"
)

// Version of the module.
const Version = "1.0.0"

// Direct access to the core components.
var (
	// DecodeMessage decodes one JSON-RPC envelope, classifying it
	// structurally into one of the four variants.
	DecodeMessage = protocol.DecodeMessage

	// EncodeMessage encodes an envelope variant back to its wire form.
	EncodeMessage = protocol.EncodeMessage

	// NewTransport creates a transport from a TransportConfig.
	NewTransport = transport.NewTransport

	// DefaultTransportConfig returns a config with sensible defaults.
	DefaultTransportConfig = transport.DefaultTransportConfig

	// ConfigFromEnv builds a transport config from MCPWIRE_* environment
	// variables.
	ConfigFromEnv = transport.ConfigFromEnv
)

// Lifecycle and correlation method names.
const (
	MethodInitialize  = protocol.MethodInitialize
	MethodInitialized = protocol.MethodInitialized
	MethodProgress    = protocol.MethodProgress
	MethodCancelled   = protocol.MethodCancelled
	MethodPing        = protocol.MethodPing
)
