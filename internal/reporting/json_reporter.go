// internal/reporting/json_reporter.go
package reporting

import (
	"fmt"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// jsonCase is the line format written by JSONReporter.
type jsonCase struct {
	Suite      string  `json:"suite"`
	Name       string  `json:"name"`
	Mode       string  `json:"mode"`
	Steps      int     `json:"steps"`
	Saved      bool    `json:"saved"`
	Seconds    float64 `json:"seconds"`
	Divergence string  `json:"divergence,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// JSONReporter streams one JSON object per test case.
type JSONReporter struct {
	mu     sync.Mutex
	writer io.WriteCloser
	stream *jsoniter.Stream
	logger *zap.Logger
}

// NewJSONReporter creates a reporter that takes ownership of writer.
func NewJSONReporter(writer io.WriteCloser, logger *zap.Logger) *JSONReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONReporter{
		writer: writer,
		stream: jsoniter.NewStream(jsoniter.ConfigCompatibleWithStandardLibrary, writer, 512),
		logger: logger.Named("json_reporter"),
	}
}

func (r *JSONReporter) Write(tc TestCase) error {
	line := jsonCase{
		Suite:      tc.Suite,
		Name:       tc.Name,
		Mode:       tc.Mode,
		Steps:      tc.Steps,
		Saved:      tc.Saved,
		Seconds:    tc.Duration.Seconds(),
		Divergence: tc.Divergence,
	}
	if tc.Err != nil {
		line.Error = tc.Err.Error()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.stream.WriteVal(line)
	r.stream.WriteRaw("\n")
	if r.stream.Error != nil {
		return fmt.Errorf("failed to encode test case: %w", r.stream.Error)
	}
	return r.stream.Flush()
}

func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	flushErr := r.stream.Flush()
	closeErr := r.writer.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush JSON output: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}
