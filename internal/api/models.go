package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/goodtune/reelfocus/internal/detect"
)

// maxBodyBytes bounds request bodies; UI tree snapshots are the largest.
const maxBodyBytes = 1 << 20

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// SuccessResponse represents a generic success response.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// CommandRequest carries optional command arguments.
type CommandRequest struct {
	// Minutes is the break length for take-break.
	Minutes int `json:"minutes,omitempty"`
}

// UsageReport is a foreground observation pushed by the on-device agent.
type UsageReport struct {
	PackageID  string    `json:"package_id"`
	LastUsed   time.Time `json:"last_used"`
	Permission *bool     `json:"permission,omitempty"`
}

// SignalRequest is a pattern-based classification computed on the device.
type SignalRequest struct {
	PackageID  string    `json:"package_id"`
	Engaged    bool      `json:"engaged"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// TreeRequest is a UI tree snapshot to be scored on the server.
type TreeRequest struct {
	PackageID  string      `json:"package_id"`
	CapturedAt time.Time   `json:"captured_at"`
	Root       detect.Node `json:"root"`
}

// TreeResponse is the outcome of scoring a UI tree.
type TreeResponse struct {
	Result   detect.Result   `json:"result"`
	Analysis detect.Analysis `json:"analysis"`
}

// PermissionResponse reports whether usage data can be read.
type PermissionResponse struct {
	Granted bool `json:"granted"`
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"Internal Server Error","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched
// when optional is set.
func decodeJSON(r *http.Request, v interface{}, optional bool) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}
	if len(data) > maxBodyBytes {
		return fmt.Errorf("request body too large")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		if optional {
			return nil
		}
		return fmt.Errorf("request body is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
