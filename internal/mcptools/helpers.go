// Package mcptools exposes kernel operations as MCP tools.
//
// Each tool handler follows the same pattern:
// - A struct with its dependencies injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// Failures are reported as tool errors, never as protocol errors.
package mcptools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// floatArg extracts a numeric argument from a tool request, returning
// defaultVal and false if the key is missing or not a number.
func floatArg(req mcp.CallToolRequest, key string, defaultVal float64) (float64, bool) {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal, false
	}
	return v, true
}

// listArg splits a comma-separated argument into trimmed, non-empty parts.
func listArg(req mcp.CallToolRequest, key string) []string {
	var out []string
	for _, part := range strings.Split(req.GetString(key, ""), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// jsonResult renders v as indented JSON text.
func jsonResult(v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}
