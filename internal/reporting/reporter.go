// internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
)

// TestCase is the outcome of one test body in one suite file.
type TestCase struct {
	Suite    string
	Name     string
	Mode     string
	Steps    int
	Saved    bool
	Duration time.Duration
	// Divergence is the replay failure that forced a regeneration, if any.
	Divergence string
	Err        error
}

// Failed reports whether the test case failed.
func (c TestCase) Failed() bool {
	return c.Err != nil
}

// Reporter defines the interface for writing run results to an output.
type Reporter interface {
	// Write records a single test case.
	Write(tc TestCase) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a new reporter based on the specified format and output path.
func New(format, outputPath, toolVersion string, logger *zap.Logger) (Reporter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch format {
	case "junit", "json":
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	if format == "junit" {
		return NewJUnitReporter(writer, toolVersion, logger), nil
	}
	return NewJSONReporter(writer, logger), nil
}
