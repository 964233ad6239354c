package inheritance

import "errors"

// Sentinel errors returned by the Engine.
var (
	// ErrProjectNotFound indicates no project is registered under the name.
	ErrProjectNotFound = errors.New("project not found")

	// ErrUnknownFieldKind indicates a FieldSpec with an undefined kind.
	ErrUnknownFieldKind = errors.New("unknown field kind")

	// ErrClosed indicates the engine was closed.
	ErrClosed = errors.New("engine closed")
)
