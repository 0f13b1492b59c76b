package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	gwerrors "github.com/LucidWonk/environment-mcp-gateway-sub002/internal/errors"
)

// jsonResult renders v as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// failure turns a core error into a tool error. Expected conditions are
// reported with their category so the assistant can react to them.
func failure(action string, err error) *mcp.CallToolResult {
	var category string
	switch {
	case errors.Is(err, gwerrors.ErrNotFound):
		category = "not found"
	case errors.Is(err, gwerrors.ErrInvalidInput):
		category = "invalid input"
	case errors.Is(err, gwerrors.ErrOperationTerminal):
		category = "conflict"
	}
	if category != "" {
		return mcp.NewToolResultError(fmt.Sprintf("%s (%s): %v", action, category, err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", action, err))
}

// required returns a tool error naming the first missing string argument.
func required(req mcp.CallToolRequest, keys ...string) *mcp.CallToolResult {
	for _, k := range keys {
		if req.GetString(k, "") == "" {
			return mcp.NewToolResultError(fmt.Sprintf("'%s' is required", k))
		}
	}
	return nil
}

// intArg extracts an integer argument, returning defaultVal if the key is
// missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// objectArg extracts an object argument, or nil.
func objectArg(req mcp.CallToolRequest, key string) map[string]any {
	v, _ := req.GetArguments()[key].(map[string]any)
	return v
}

// jsonArg returns a JSON-encoded string argument as raw JSON so numbers
// reach the store verbatim. ok is false when the argument is absent.
func jsonArg(req mcp.CallToolRequest, key string) (value any, ok bool, err error) {
	raw := req.GetString(key, "")
	if raw == "" {
		return nil, false, nil
	}
	if !json.Valid([]byte(raw)) {
		return nil, true, fmt.Errorf("'%s' must be valid JSON", key)
	}
	return json.RawMessage(raw), true, nil
}
