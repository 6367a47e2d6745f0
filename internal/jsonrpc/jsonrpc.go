// Package jsonrpc implements the JSON-RPC 2.0 message shapes shared by both
// cratedocs transports. Messages are parsed into AnyMessage first and then
// narrowed to Request or Response; the narrowing never re-parses bytes.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the JSON-RPC protocol version in every message.
const ProtocolVersion = "2.0"

// Message is the raw JSON representation of a single framed message.
type Message []byte

// AnyMessage is a generic JSON-RPC message: request, notification, or
// response. Which one it is depends on the method/result/error fields.
type AnyMessage struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Request is a JSON-RPC request (ID set) or notification (ID nil).
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Response is a JSON-RPC response correlated to a request by ID.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewRequest builds a request with marshaled params. A nil id produces a
// notification.
func NewRequest(id *RequestID, method string, params any) (*Request, error) {
	req := &Request{JSONRPCVersion: ProtocolVersion, Method: method, ID: id}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params for %s: %w", method, err)
		}
		req.Params = b
	}
	return req, nil
}

// NewResultResponse builds a successful response carrying result.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Response{JSONRPCVersion: ProtocolVersion, Result: b, ID: id}, nil
}

// NewErrorResponse builds an error response with the given code.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error:          &Error{Code: code, Message: message, Data: data},
		ID:             id,
	}
}

// UnmarshalJSON validates JSON-RPC 2.0 structure while decoding.
func (m *AnyMessage) UnmarshalJSON(data []byte) error {
	type raw AnyMessage
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if r.JSONRPCVersion != ProtocolVersion {
		return fmt.Errorf("invalid JSON-RPC version: expected %q, got %q", ProtocolVersion, r.JSONRPCVersion)
	}

	hasMethod := r.Method != ""
	hasResult := len(r.Result) > 0
	hasError := r.Error != nil

	switch {
	case hasMethod && (hasResult || hasError):
		return fmt.Errorf("request message cannot carry result or error fields")
	case !hasMethod && hasResult && hasError:
		return fmt.Errorf("response message cannot carry both result and error fields")
	case !hasMethod && !hasResult && !hasError:
		return fmt.Errorf("response message must carry a result or error field")
	}

	*m = AnyMessage(r)
	return nil
}

// Type reports "request", "notification", or "response".
func (m *AnyMessage) Type() string {
	if m.Method != "" {
		if m.ID.IsNil() {
			return "notification"
		}
		return "request"
	}
	return "response"
}

// AsRequest narrows the message to a Request, or nil if it is a response.
func (m *AnyMessage) AsRequest() *Request {
	if m.Method == "" {
		return nil
	}
	return &Request{JSONRPCVersion: m.JSONRPCVersion, Method: m.Method, Params: m.Params, ID: m.ID}
}

// AsResponse narrows the message to a Response, or nil if it is a request.
func (m *AnyMessage) AsResponse() *Response {
	if m.Method != "" {
		return nil
	}
	return &Response{JSONRPCVersion: m.JSONRPCVersion, Result: m.Result, Error: m.Error, ID: m.ID}
}
