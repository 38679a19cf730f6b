package report

import (
	"encoding/json"
	"io"
)

// TraceReport summarizes a set of decoded trace files.
type TraceReport struct {
	Files      []string `json:"files"`
	Records    uint64   `json:"records"`
	Blocks     uint64   `json:"blocks"`
	MaxDepth   int      `json:"max_depth"`
	TotalBytes int64    `json:"total_bytes"`
}

type TraceReportOption func(*TraceReport)

func NewTraceReport(opts ...TraceReportOption) *TraceReport {
	report := new(TraceReport)
	for _, opt := range opts {
		opt(report)
	}

	return report
}

func WithReportFiles(files []string) TraceReportOption {
	return func(o *TraceReport) {
		o.Files = files
	}
}

func WithReportRecords(records uint64) TraceReportOption {
	return func(o *TraceReport) {
		o.Records = records
	}
}

func WithReportBlocks(blocks uint64) TraceReportOption {
	return func(o *TraceReport) {
		o.Blocks = blocks
	}
}

func WithReportMaxDepth(depth int) TraceReportOption {
	return func(o *TraceReport) {
		o.MaxDepth = depth
	}
}

func WithReportTotalBytes(n int64) TraceReportOption {
	return func(o *TraceReport) {
		o.TotalBytes = n
	}
}

func (r *TraceReport) WriteReport(w io.Writer) error {
	encoder := json.NewEncoder(w)
	return encoder.Encode(r)
}
