package model

// ToolResponse is the HTTP envelope for bridged tool calls.
type ToolResponse struct {
	Status  string     `json:"status"`
	Tool    string     `json:"tool,omitempty"`
	Result  string     `json:"result,omitempty"`
	Message string     `json:"message,omitempty"`
	Error   *ToolError `json:"error,omitempty"`
}

// ToolError carries a stable error code alongside the message.
type ToolError struct {
	Code    string `json:"error_code"`
	Message string `json:"message"`
}
