package tools

import (
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
)

func arguments(req mcp.CallToolRequest) map[string]any {
	args, _ := req.Params.Arguments.(map[string]any)
	return args
}

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	val, _ := arguments(req)[key].(string)
	return val
}

// getOptionalBool extracts an optional boolean argument, defaulting to false.
func getOptionalBool(req mcp.CallToolRequest, key string) bool {
	val, _ := arguments(req)[key].(bool)
	return val
}

// getOptionalInt extracts an optional integer argument. Clients send numbers as
// float64 but some send numeric strings.
func getOptionalInt(req mcp.CallToolRequest, key string) (int64, bool, error) {
	raw, ok := arguments(req)[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		return int64(v), true, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("%s must be a number: %w", key, err)
		}
		return n, true, nil
	default:
		return 0, false, fmt.Errorf("%s must be a number", key)
	}
}

// requireID extracts the required numeric "id" argument.
func requireID(req mcp.CallToolRequest) (int64, error) {
	id, ok, err := getOptionalInt(req, "id")
	if err != nil {
		return 0, err
	}
	if !ok || id <= 0 {
		return 0, fmt.Errorf("id must be a positive number")
	}
	return id, nil
}
