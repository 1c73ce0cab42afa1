package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxLoggedArgLength truncates long string arguments in logs.
const maxLoggedArgLength = 200

// sensitiveArgs are redacted wherever they appear in an argument name.
// Node keys are graph identifiers and are logged as-is.
var sensitiveArgs = []string{"password", "secret", "token", "credential", "dsn"}

// MCPRequestLogger returns middleware that logs MCP tools/call requests and
// the structured result code of each response. A nil logger disables logging.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var rpcReq jsonRPCRequest
			if err := json.Unmarshal(bodyBytes, &rpcReq); err != nil {
				// Batches and notifications are passed through unlogged.
				next.ServeHTTP(w, r)
				return
			}

			logger.Debug("MCP request",
				zap.String("method", rpcReq.Method),
				zap.String("tool", rpcReq.Params.Name),
				zap.Any("arguments", sanitizeArguments(rpcReq.Params.Arguments)),
			)

			recorder := &bodyRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)

			if rpcReq.Method != "tools/call" {
				return
			}

			fields := []zap.Field{
				zap.String("tool", rpcReq.Params.Name),
				zap.Duration("duration", duration),
			}
			if code := resultErrorCode(recorder.body.Bytes()); code != "" {
				logger.Debug("MCP tool failed", append(fields, zap.String("code", code))...)
				return
			}
			logger.Debug("MCP tool succeeded", fields...)
		})
	}
}

type jsonRPCRequest struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

// resultErrorCode extracts the failure code from a tools/call response: the
// JSON-RPC error code for protocol errors, or the structured result code
// carried in the text content. Empty means success or an unparseable body.
func resultErrorCode(body []byte) string {
	var resp struct {
		Result *struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	if resp.Error != nil {
		return "jsonrpc_error"
	}
	if resp.Result == nil || !resp.Result.IsError {
		return ""
	}
	for _, c := range resp.Result.Content {
		var envelope struct {
			Error *struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal([]byte(c.Text), &envelope) == nil && envelope.Error != nil {
			return envelope.Error.Code
		}
	}
	return "unknown"
}

// bodyRecorder tees the response body so it can be inspected after the handler returns.
type bodyRecorder struct {
	http.ResponseWriter
	body bytes.Buffer
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *bodyRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// sanitizeArguments redacts sensitive fields and truncates long values.
func sanitizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}

	result := make(map[string]any, len(args))
	for k, v := range args {
		lowerKey := strings.ToLower(k)
		redacted := false
		for _, keyword := range sensitiveArgs {
			if strings.Contains(lowerKey, keyword) {
				redacted = true
				break
			}
		}
		if redacted {
			result[k] = "[REDACTED]"
			continue
		}

		if str, ok := v.(string); ok && len(str) > maxLoggedArgLength {
			result[k] = str[:maxLoggedArgLength] + "..."
		} else {
			result[k] = v
		}
	}
	return result
}
