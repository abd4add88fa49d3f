package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSONRPCVersion is the only accepted protocol version
const JSONRPCVersion = "2.0"

// Request is one JSON-RPC 2.0 request or notification
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response is one JSON-RPC 2.0 response. ID is null when the request id
// could not be determined.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewResult builds a success response
func NewResult(id json.RawMessage, result any) *Response {
	if result == nil {
		result = struct{}{}
	}
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Result: result}
}

// NewErrorResponse builds an error response
func NewErrorResponse(id json.RawMessage, code int, message string) *Response {
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Error: &RPCError{Code: code, Message: message}}
}

// LineTooLongResponse is sent for a request line over the transport limit
func LineTooLongResponse(limit int) *Response {
	return NewErrorResponse(nil, CodeInvalidRequest, fmt.Sprintf("request exceeds maximum line length of %d bytes", limit))
}

// ParamError reports a missing or malformed parameter; it maps to -32602
type ParamError struct {
	Field  string
	Reason string
}

func (e *ParamError) Error() string {
	if e.Field == "" {
		return "invalid params: " + e.Reason
	}
	return fmt.Sprintf("invalid params: %s %s", e.Field, e.Reason)
}

// validID accepts string, number and null ids
func validID(id json.RawMessage) bool {
	id = bytes.TrimSpace(id)
	if len(id) == 0 {
		return true
	}
	switch id[0] {
	case '"':
		var s string
		return json.Unmarshal(id, &s) == nil
	case 'n':
		return string(id) == "null"
	case '{', '[', 't', 'f':
		return false
	}
	var n json.Number
	return json.Unmarshal(id, &n) == nil
}

// decodeParams unmarshals an object params value. Absent or null params
// decode as an empty object.
func decodeParams(raw json.RawMessage, target any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] != '{' {
		return &ParamError{Reason: "params must be an object"}
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return &ParamError{Reason: err.Error()}
	}
	return nil
}
