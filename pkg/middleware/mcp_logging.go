package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/bugsneak/pkg/logging"
)

const (
	// maxLoggedArgumentLength caps string tool arguments in logs.
	maxLoggedArgumentLength = 200
	// maxMCPBodyBytes bounds what is buffered for inspection.
	maxMCPBodyBytes = 1 << 20
)

// mcpCall is the part of a JSON-RPC request worth logging.
type mcpCall struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

// mcpReply is the part of a JSON-RPC response worth logging. Tool failures set
// result.isError and carry an ErrorResponse JSON document in the first text block.
type mcpReply struct {
	Result struct {
		IsError bool `json:"isError"`
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// toolErrorCode pulls the "code" field out of a tool error payload, if any.
func (r *mcpReply) toolErrorCode() string {
	if len(r.Result.Content) == 0 {
		return ""
	}
	var payload struct {
		Code string `json:"code"`
	}
	if json.Unmarshal([]byte(r.Result.Content[0].Text), &payload) != nil {
		return ""
	}
	return payload.Code
}

// MCPRequestLogger logs each MCP JSON-RPC exchange at debug level: the method and
// tool, the redacted arguments, and how the call ended. A nil logger disables it.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}
		logger = logger.Named("mcp")

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMCPBodyBytes))
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				http.Error(w, "unreadable request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var call mcpCall
			if err := json.Unmarshal(body, &call); err != nil {
				logger.Debug("Failed to parse MCP request JSON", zap.Error(err))
			}
			tool := zap.String("tool", call.Params.Name)
			logger.Debug("MCP request",
				zap.String("method", call.Method),
				tool,
				zap.Any("arguments", sanitizeArguments(call.Params.Arguments)))

			tee := &teeWriter{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(tee, r)
			took := zap.Duration("duration", time.Since(start))

			var reply mcpReply
			if err := json.Unmarshal(tee.buf.Bytes(), &reply); err != nil {
				logger.Debug("Failed to parse MCP response JSON", zap.Error(err))
				return
			}

			if reply.Error != nil {
				logger.Debug("MCP response error", tool, took,
					zap.Int("error_code", reply.Error.Code),
					zap.String("error_message", reply.Error.Message))
				return
			}
			if reply.Result.IsError {
				logger.Debug("MCP tool error", tool, took, zap.String("code", reply.toolErrorCode()))
				return
			}
			logger.Debug("MCP response success", tool, took)
		})
	}
}

// teeWriter keeps a copy of everything written to the client.
type teeWriter struct {
	http.ResponseWriter
	buf bytes.Buffer
}

func (t *teeWriter) Write(b []byte) (int, error) {
	t.buf.Write(b)
	return t.ResponseWriter.Write(b)
}

// sanitizeArguments returns a redacted copy of args with long strings truncated.
func sanitizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := logging.RedactValues(args)
	for k, v := range out {
		if s, ok := v.(string); ok {
			out[k] = logging.TruncateString(s, maxLoggedArgumentLength)
		}
	}
	return out
}
