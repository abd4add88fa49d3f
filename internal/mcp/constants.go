package mcp

// Server identity reported by initialize
const (
	ServerName = "lwi"
	Layout     = "micro"
)

// JSON-RPC 2.0 error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Suggestion ranking for not-found refusals
const (
	// DefaultFuzzyThreshold is the minimum Jaro-Winkler similarity for a
	// did-you-mean candidate
	DefaultFuzzyThreshold = 0.8

	// MaxSuggestions caps the candidates attached to a refusal
	MaxSuggestions = 3
)
