package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pithecene-io/bilat/metrics"
	"github.com/pithecene-io/bilat/types"
)

// RequestReport is the structured JSON report written by request --report.
type RequestReport struct {
	RequestID  string  `json:"request_id"`
	Server     string  `json:"server"`
	Mode       string  `json:"mode"`
	Workers    int     `json:"workers"`
	Diameter   int     `json:"diameter"`
	SigmaColor float64 `json:"sigma_color"`
	SigmaSpace float64 `json:"sigma_space"`
	ImageBytes int     `json:"image_bytes"`

	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	ExitCode    int    `json:"exit_code"`
	ResultBytes int    `json:"result_bytes"`
	DurationMs  int64  `json:"duration_ms"`

	// Progress lists the percentages delivered to the caller, in order.
	Progress []int             `json:"progress"`
	Metrics  *metrics.Snapshot `json:"metrics,omitempty"`
}

// BuildRequestReport composes a report from a finished Submit call.
// res may be nil when err is set.
func BuildRequestReport(req *types.ProcessingRequest, server string, res *types.Result, err error, progress []int, snap *metrics.Snapshot, elapsed time.Duration) *RequestReport {
	report := &RequestReport{
		RequestID:  req.ID.String(),
		Server:     server,
		Mode:       req.Mode.String(),
		Workers:    req.WorkerCount(),
		Diameter:   req.Diameter,
		SigmaColor: req.SigmaColor,
		SigmaSpace: req.SigmaSpace,
		ImageBytes: len(req.Image),
		ExitCode:   ExitCodeFor(res, err),
		DurationMs: elapsed.Milliseconds(),
		Progress:   append([]int{}, progress...),
		Metrics:    snap,
	}

	switch {
	case err != nil:
		report.Status = "transport_error"
		report.Message = err.Error()
	case res == nil:
		report.Status = "transport_error"
	default:
		report.Status = res.Status.String()
		report.Message = res.Message
		report.ResultBytes = len(res.Image)
	}
	return report
}

// WriteRequestReport writes the report as JSON to path. "-" writes to
// stderr.
func WriteRequestReport(report *RequestReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}
	if path == "-" {
		if err := writeRequestReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	if err := writeRequestReportTo(report, f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return f.Close()
}

func writeRequestReportTo(report *RequestReport, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
