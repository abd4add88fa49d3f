package mcp

import "github.com/standardbeagle/lwi/internal/indexing"

// Confidence is the trust tier attached to every query result
type Confidence string

const (
	ConfidenceHigh    Confidence = "high"
	ConfidencePartial Confidence = "partial"
	ConfidenceNone    Confidence = "none"
)

// Scope says whether a result stays within one service
type Scope string

const (
	ScopeLocal        Scope = "local"
	ScopeInterService Scope = "inter_service"
)

// RefusalCode identifies why a query was refused
type RefusalCode string

const (
	CodeIndexNotReady          RefusalCode = "INDEX_NOT_READY"
	CodeOutsideWorkspace       RefusalCode = "OUTSIDE_WORKSPACE"
	CodeFileNotFound           RefusalCode = "FILE_NOT_FOUND"
	CodeNotAFile               RefusalCode = "NOT_A_FILE"
	CodeFileNotIndexed         RefusalCode = "FILE_NOT_INDEXED"
	CodeOutsideService         RefusalCode = "OUTSIDE_SERVICE"
	CodeFunctionNotFound       RefusalCode = "FUNCTION_NOT_FOUND"
	CodeRouteNotFound          RefusalCode = "ROUTE_NOT_FOUND"
	CodeDiagnosticsUnavailable RefusalCode = "DIAGNOSTICS_UNAVAILABLE"
	CodeDiagnosticsDisabled    RefusalCode = "DIAGNOSTICS_DISABLED"
)

// ServiceContext is attached to every response
type ServiceContext struct {
	Service string `json:"service"`
	Layout  string `json:"layout"`
	Scope   Scope  `json:"scope"`
}

// LocalContext is the context of a result confined to one service (or none)
func LocalContext(service string) ServiceContext {
	return ServiceContext{Service: service, Layout: Layout, Scope: ScopeLocal}
}

// InterServiceContext is the context of a result spanning services
func InterServiceContext(service string) ServiceContext {
	return ServiceContext{Service: service, Layout: Layout, Scope: ScopeInterService}
}

// Refusal is the structured error of a None-confidence envelope. The
// suggestion always names a concrete next action.
type Refusal struct {
	Code       RefusalCode `json:"code"`
	Message    string      `json:"message"`
	Cause      string      `json:"cause"`
	Suggestion string      `json:"suggestion"`
	Candidates []string    `json:"candidates,omitempty"`
}

// Envelope wraps every query result
type Envelope struct {
	Data       any            `json:"data"`
	Confidence Confidence     `json:"confidence"`
	Context    ServiceContext `json:"context"`
	Reason     string         `json:"reason,omitempty"`
	Generation uint64         `json:"generation,omitempty"`
	Error      *Refusal       `json:"error,omitempty"`
}

// HighConfidence wraps data read directly from parsed records
func HighConfidence(data any, ctx ServiceContext) *Envelope {
	return &Envelope{Data: data, Confidence: ConfidenceHigh, Context: ctx}
}

// PartialConfidence wraps data derived through an indirect or unresolved link
func PartialConfidence(data any, ctx ServiceContext, reason string) *Envelope {
	return &Envelope{Data: data, Confidence: ConfidencePartial, Context: ctx, Reason: reason}
}

// NewRefusal builds a None-confidence envelope with no data
func NewRefusal(code RefusalCode, message, cause, suggestion string, ctx ServiceContext) *Envelope {
	return &Envelope{
		Confidence: ConfidenceNone,
		Context:    ctx,
		Error: &Refusal{
			Code:       code,
			Message:    message,
			Cause:      cause,
			Suggestion: suggestion,
		},
	}
}

// WithCandidates attaches did-you-mean candidates to a refusal
func (e *Envelope) WithCandidates(candidates []string) *Envelope {
	if e.Error != nil && len(candidates) > 0 {
		e.Error.Candidates = candidates
	}
	return e
}

// WithGeneration records which index generation produced the data
func (e *Envelope) WithGeneration(gen uint64) *Envelope {
	e.Generation = gen
	return e
}

// IsRefusal reports whether the envelope carries no usable data
func (e *Envelope) IsRefusal() bool {
	return e.Confidence == ConfidenceNone
}

// notReady refuses a query because the index is not in a readable state
func notReady(state indexing.IndexState, reason string) *Envelope {
	cause := "the index is " + state.String()
	suggestion := "wait for indexing to finish, then retry; poll get_index_status until state is ready"
	switch state {
	case indexing.StateFailed:
		if reason != "" {
			cause += ": " + reason
		}
		suggestion = "inspect get_index_status for the failure, fix the workspace, then call rescan"
	case indexing.StateNotStarted:
		suggestion = "the initial scan has not started; call rescan or retry shortly"
	}
	return NewRefusal(CodeIndexNotReady, "index is not ready (state: "+state.String()+")", cause, suggestion, LocalContext(""))
}
