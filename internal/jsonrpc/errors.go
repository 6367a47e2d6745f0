package jsonrpc

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	// ErrorCodeParseError indicates invalid JSON was received.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest indicates a structurally invalid Request object.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound indicates the method does not exist.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams indicates invalid method parameters.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError indicates an internal server error.
	ErrorCodeInternalError ErrorCode = -32603
)

// Server-defined codes in the JSON-RPC reserved range (-32000..-32099).
const (
	// ErrorCodeLookupFailed indicates an upstream documentation fetch
	// failed, including timeouts. The underlying cause is carried in the
	// error data.
	ErrorCodeLookupFailed ErrorCode = -32001
	// ErrorCodeNotFound indicates the requested crate or item does not
	// exist upstream.
	ErrorCodeNotFound ErrorCode = -32002
)
