package domain

import "errors"

// Model construction errors. A failed mutation leaves the model unchanged.
var (
	ErrUnknownVariable     = errors.New("unknown variable")
	ErrDuplicateVariable   = errors.New("variable already exists")
	ErrInvalidDomain       = errors.New("invalid domain")
	ErrSelfLoop            = errors.New("edge from a variable to itself")
	ErrCyclicGraph         = errors.New("edge would create a cycle")
	ErrDuplicateEdge       = errors.New("edge already exists")
	ErrEdgeNotFound        = errors.New("edge not found")
	ErrScopeMismatch       = errors.New("factor scope does not match node and parents")
	ErrInvalidDistribution = errors.New("invalid conditional distribution")
	ErrMissingDistribution = errors.New("node has no local distribution")
)

// Compilation errors.
var (
	// ErrTriangulationFailure means no clique covers a node's family. It is
	// an internal invariant violation.
	ErrTriangulationFailure = errors.New("triangulation failure: factor not covered by any clique")
	ErrDisconnected         = errors.New("moral graph is disconnected")
	ErrCliqueTooLarge       = errors.New("clique exceeds maximum size")
)

// Query errors. They abort only the current query.
var (
	ErrEmptyQuery             = errors.New("searched variables must not be empty")
	ErrOverlappingQuery       = errors.New("searched and known variables overlap")
	ErrScopeNotCoverable      = errors.New("query scope is not covered by any clique")
	ErrDegenerateConditioning = errors.New("conditioning event has zero probability")
	ErrInvalidValue           = errors.New("invalid value")
	ErrStaleModel             = errors.New("model changed since snapshot was taken")
)
