// internal/reporting/junit_reporter.go
package reporting

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/beevik/etree"
	"go.uber.org/zap"
)

// JUnitReporter writes a JUnit XML document with one testsuite per suite
// file. It is thread safe; nothing is written until Close.
type JUnitReporter struct {
	writer      io.WriteCloser
	logger      *zap.Logger
	toolVersion string
	now         func() time.Time

	mu     sync.Mutex
	suites map[string][]TestCase
	order  []string
}

// NewJUnitReporter creates a reporter that takes ownership of writer.
func NewJUnitReporter(writer io.WriteCloser, toolVersion string, logger *zap.Logger) *JUnitReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JUnitReporter{
		writer:      writer,
		logger:      logger.Named("junit_reporter"),
		toolVersion: toolVersion,
		now:         time.Now,
		suites:      make(map[string][]TestCase),
	}
}

func (r *JUnitReporter) Write(tc TestCase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.suites[tc.Suite]; !ok {
		r.order = append(r.order, tc.Suite)
	}
	r.suites[tc.Suite] = append(r.suites[tc.Suite], tc)
	return nil
}

// Document builds the XML document for everything written so far.
func (r *JUnitReporter) Document() *etree.Document {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("testsuites")
	root.CreateAttr("name", "mimic")

	suites := append([]string(nil), r.order...)
	sort.Strings(suites)

	var total, failures int
	var elapsed time.Duration
	for _, name := range suites {
		cases := r.suites[name]
		suiteEl := root.CreateElement("testsuite")
		suiteEl.CreateAttr("name", name)
		suiteEl.CreateAttr("timestamp", r.now().UTC().Format(time.RFC3339))

		props := suiteEl.CreateElement("properties")
		prop := props.CreateElement("property")
		prop.CreateAttr("name", "mimic.version")
		prop.CreateAttr("value", r.toolVersion)

		var suiteFailures int
		var suiteTime time.Duration
		for _, tc := range cases {
			caseEl := suiteEl.CreateElement("testcase")
			caseEl.CreateAttr("name", tc.Name)
			caseEl.CreateAttr("classname", name)
			caseEl.CreateAttr("time", seconds(tc.Duration))

			caseProps := caseEl.CreateElement("properties")
			addProperty(caseProps, "mode", tc.Mode)
			addProperty(caseProps, "steps", strconv.Itoa(tc.Steps))
			addProperty(caseProps, "snapshot.saved", strconv.FormatBool(tc.Saved))

			if tc.Failed() {
				suiteFailures++
				failure := caseEl.CreateElement("failure")
				failure.CreateAttr("message", tc.Err.Error())
				failure.CreateAttr("type", "mimic.StepFailure")
				failure.SetText(tc.Err.Error())
			}
			if tc.Divergence != "" {
				out := caseEl.CreateElement("system-out")
				out.SetText(fmt.Sprintf("snapshot replay diverged, regenerated: %s", tc.Divergence))
			}
			suiteTime += tc.Duration
		}
		suiteEl.CreateAttr("tests", strconv.Itoa(len(cases)))
		suiteEl.CreateAttr("failures", strconv.Itoa(suiteFailures))
		suiteEl.CreateAttr("errors", "0")
		suiteEl.CreateAttr("time", seconds(suiteTime))

		total += len(cases)
		failures += suiteFailures
		elapsed += suiteTime
	}
	root.CreateAttr("tests", strconv.Itoa(total))
	root.CreateAttr("failures", strconv.Itoa(failures))
	root.CreateAttr("time", seconds(elapsed))
	doc.Indent(2)
	return doc
}

// Close writes the document and closes the writer.
func (r *JUnitReporter) Close() error {
	doc := r.Document()
	_, writeErr := doc.WriteTo(r.writer)
	closeErr := r.writer.Close()

	if writeErr != nil {
		r.logger.Error("Failed to write JUnit report", zap.Error(writeErr))
		return fmt.Errorf("failed to write JUnit output: %w", writeErr)
	}
	if closeErr != nil {
		r.logger.Error("Failed to close output writer", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	r.logger.Info("Wrote JUnit report", zap.Int("suites", len(r.order)))
	return nil
}

func addProperty(props *etree.Element, name, value string) {
	p := props.CreateElement("property")
	p.CreateAttr("name", name)
	p.CreateAttr("value", value)
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
