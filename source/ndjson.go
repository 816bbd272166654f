package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/cefstream/cefstream/jsonrs"
	"github.com/cefstream/cefstream/processor"
)

// NDJSONConfig describes a newline delimited JSON input. Every line is one
// record; all records share the configured data type and subtype.
type NDJSONConfig struct {
	Path      string // "-" or empty reads stdin
	DataType  string
	Subtype   string
	BatchSize int
	MaxLineKB int
}

// NDJSONConfigFromConf reads the source settings from conf.
func NDJSONConfigFromConf(conf *config.Config) NDJSONConfig {
	return NDJSONConfig{
		Path:      conf.GetString("Source.path", "-"),
		DataType:  conf.GetString("Source.dataType", "alerts"),
		Subtype:   conf.GetString("Source.subtype", ""),
		BatchSize: conf.GetInt("Source.batchSize", 100),
		MaxLineKB: conf.GetInt("Source.maxLineKB", 10240),
	}
}

// NDJSON reads one JSON record per line and groups them into fixed size
// batches. Lines that are not valid JSON objects are logged and skipped.
type NDJSON struct {
	log     logger.Logger
	conf    NDJSONConfig
	scanner *bufio.Scanner
	closer  io.Closer
	lineNo  int64
}

// NewNDJSON opens the configured input. A path of "-" (or empty) reads
// stdin, which is left open on Close.
func NewNDJSON(conf NDJSONConfig, log logger.Logger) (*NDJSON, error) {
	var (
		reader io.Reader = os.Stdin
		closer io.Closer
	)
	if conf.Path != "" && conf.Path != "-" {
		f, err := os.Open(conf.Path)
		if err != nil {
			return nil, fmt.Errorf("opening source: %w", err)
		}
		reader, closer = f, f
	}
	if conf.BatchSize < 1 {
		conf.BatchSize = 1
	}
	// default scanner buffer tops out at 64K, records can be far bigger
	maxCapacity := conf.MaxLineKB * 1024
	if maxCapacity < bufio.MaxScanTokenSize {
		maxCapacity = bufio.MaxScanTokenSize
	}
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), maxCapacity)
	return &NDJSON{
		log:     log.Child("source"),
		conf:    conf,
		scanner: scanner,
		closer:  closer,
	}, nil
}

// Next returns the next batch of records, io.EOF once the input is drained.
func (s *NDJSON) Next(ctx context.Context) (processor.Batch, error) {
	batch := processor.Batch{DataType: s.conf.DataType, Subtype: s.conf.Subtype}
	for len(batch.Records) < s.conf.BatchSize {
		if err := ctx.Err(); err != nil {
			return processor.Batch{}, err
		}
		if !s.scanner.Scan() {
			break
		}
		s.lineNo++
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if line[0] != '{' || !jsonrs.Valid(line) {
			s.log.Warnn("skipping line that is not a JSON object",
				logger.NewIntField("line", s.lineNo))
			continue
		}
		batch.Records = append(batch.Records, json.RawMessage(bytes.Clone(line)))
	}
	if err := s.scanner.Err(); err != nil {
		return processor.Batch{}, fmt.Errorf("reading source: %w", err)
	}
	if len(batch.Records) == 0 {
		return processor.Batch{}, io.EOF
	}
	return batch, nil
}

// Close closes the underlying file, if any.
func (s *NDJSON) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
