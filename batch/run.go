package batch

import (
	"context"
	"fmt"
	"io"
	"time"

	"royal/internal"
	"royal/logger"
	"royal/metrics"
	"royal/parser"
)

// Result is the outcome of parsing one Record. Message is nil when Err is set.
type Result struct {
	Record  Record
	Message *parser.Message
	Err     error
}

// Summary aggregates the results of one Run
type Summary struct {
	Records   int            `json:"records" yaml:"records"`
	Parsed    int            `json:"parsed" yaml:"parsed"`
	Failed    int            `json:"failed" yaml:"failed"`
	Skipped   int            `json:"skipped_lines" yaml:"skipped_lines"`
	Awards    int            `json:"confidant_awards" yaml:"confidant_awards"`
	ByBoxType map[string]int `json:"by_box_type" yaml:"by_box_type"`
}

// Handler receives each Result in script order. Returning an error stops the run.
type Handler func(ctx context.Context, result Result) error

// Options configures a Run
type Options struct {
	Separator string
	Logger    *logger.ObservabilityLogger
}

// Run splits the script read from r into messages, parses each with p and
// passes every Result to fn. Parse failures are reported and counted, not
// returned; Run only fails on read errors, handler errors or cancellation.
func Run(ctx context.Context, r io.Reader, p *parser.Parser, opts Options, fn Handler) (Summary, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	source := internal.GetSource(ctx)

	summary := Summary{ByBoxType: make(map[string]int)}
	scanner := NewScanner(r, opts.Separator)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		record := scanner.Record()
		start := time.Now()
		msg, err := p.Parse(record.Text)
		metrics.ObserveParse(msg, err, time.Since(start))

		summary.Records++
		if err != nil {
			summary.Failed++
			log.ParseFailure(source, record.Index, string(parser.ReasonOf(err)), err)
		} else {
			summary.Parsed++
			summary.ByBoxType[msg.Header.BoxType.String()]++
			if msg.ConfidantPoints != nil {
				summary.Awards++
			}
		}

		if fn != nil {
			if err := fn(ctx, Result{Record: record, Message: msg, Err: err}); err != nil {
				return summary, fmt.Errorf("record %d (line %d): %w", record.Index, record.Line, err)
			}
		}
	}

	summary.Skipped = scanner.Skipped()
	if summary.Skipped > 0 {
		metrics.SkippedLines.Add(float64(summary.Skipped))
		log.Warn(logger.ComponentBatch, logger.CategoryWarning, "Dropped lines outside any message", map[string]interface{}{
			"source":  source,
			"skipped": summary.Skipped,
		})
	}

	if err := scanner.Err(); err != nil {
		return summary, fmt.Errorf("failed to read %s: %w", source, err)
	}

	log.Info(logger.ComponentBatch, logger.CategorySuccess, "Script processed", map[string]interface{}{
		"source":  source,
		"run_id":  internal.GetRunID(ctx),
		"records": summary.Records,
		"parsed":  summary.Parsed,
		"failed":  summary.Failed,
	})
	return summary, nil
}

// Merge adds the counts of other into s
func (s *Summary) Merge(other Summary) {
	if s.ByBoxType == nil {
		s.ByBoxType = make(map[string]int)
	}
	s.Records += other.Records
	s.Parsed += other.Parsed
	s.Failed += other.Failed
	s.Skipped += other.Skipped
	s.Awards += other.Awards
	for k, v := range other.ByBoxType {
		s.ByBoxType[k] += v
	}
}
