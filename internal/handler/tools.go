package handler

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"daraja-mcp/internal/daraja"
	"daraja-mcp/internal/mcp"
	"daraja-mcp/internal/model"
	"daraja-mcp/pkg/logger"
)

// ToolsHandler bridges MCP tools onto plain HTTP so they can be exercised
// with curl or wired to systems that do not speak the stdio protocol.
type ToolsHandler struct {
	tools  *mcp.ToolHandler
	logger *logger.Logger
}

// NewToolsHandler creates a new tools handler
func NewToolsHandler(tools *mcp.ToolHandler, log *logger.Logger) *ToolsHandler {
	return &ToolsHandler{
		tools:  tools,
		logger: log,
	}
}

// ListTools handles GET /mcp/tools
func (h *ToolsHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"tools": mcp.ToolDefinitions(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// CallTool handles POST /mcp/call_tool
func (h *ToolsHandler) CallTool(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendErrorResponse(w, "ERR_INVALID_BODY", "Request body must be JSON with name and arguments", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		h.sendErrorResponse(w, "ERR_MISSING_PARAMETER", "Tool name is required", http.StatusBadRequest)
		return
	}

	result, err := h.tools.Handle(r.Context(), req.Name, req.Arguments)
	if err != nil {
		h.logger.WithTool(req.Name).Error("Tool call failed", "error", err)
		h.sendErrorResponse(w, mapErrorCode(err), err.Error(), httpStatusFor(err))
		return
	}

	h.sendSuccessResponse(w, req.Name, result)
}

// sendSuccessResponse sends success response
func (h *ToolsHandler) sendSuccessResponse(w http.ResponseWriter, tool, result string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := model.ToolResponse{
		Status: "success",
		Tool:   tool,
		Result: result,
	}

	json.NewEncoder(w).Encode(response)
}

// sendErrorResponse sends error response
func (h *ToolsHandler) sendErrorResponse(w http.ResponseWriter, code, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := model.ToolResponse{
		Status:  "error",
		Message: message,
		Error: &model.ToolError{
			Code:    code,
			Message: message,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// mapErrorCode maps error to error code
func mapErrorCode(err error) string {
	switch {
	case errors.Is(err, mcp.ErrUnknownTool):
		return "ERR_UNKNOWN_TOOL"
	case daraja.IsValidation(err):
		return "ERR_INVALID_PARAMETER"
	case daraja.IsAuthentication(err):
		return "ERR_DARAJA_AUTH"
	case daraja.IsProcessing(err):
		return "ERR_STILL_PROCESSING"
	case daraja.IsGateway(err):
		return "ERR_DARAJA_GATEWAY"
	default:
		return "ERR_INTERNAL_SERVER"
	}
}

// httpStatusFor maps error to HTTP status code
func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, mcp.ErrUnknownTool):
		return http.StatusBadRequest
	case daraja.IsValidation(err):
		return http.StatusBadRequest
	case daraja.IsAuthentication(err), daraja.IsGateway(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
