// Package processor turns batches of schema-less records into encoded events
// by resolving the configured mapping rules against each record and handing
// the resolved fields to the encoder.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"
	obskit "github.com/rudderlabs/rudder-observability-kit/go/labels"

	"github.com/cefstream/cefstream/cef"
	"github.com/cefstream/cefstream/jsonrs"
	"github.com/cefstream/cefstream/mapping"
	"github.com/cefstream/cefstream/utils/misc"
)

// Format selects the encoded event form produced by the processor.
type Format string

const (
	// FormatCEF emits delimiter joined text lines.
	FormatCEF Format = "cef"
	// FormatJSON emits structured key/value envelopes.
	FormatJSON Format = "json"
)

// Reasons records are dropped, used as stats labels and response keys.
const (
	dropReasonMalformedRecord  = "malformed_record"
	dropReasonEmptyRecord      = "empty_record"
	dropReasonMissingTimestamp = "missing_timestamp"
	dropReasonUnmappedRecord   = "unmapped_record"
	dropReasonEmptyExtension   = "empty_extension"
	dropReasonEncodingFailure  = "encoding_failure"
	dropReasonUnknownSubtype   = "unknown_subtype"
)

// Batch is an ordered group of raw records sharing a data type and subtype.
type Batch struct {
	DataType string
	Subtype  string
	Records  []json.RawMessage
}

// EncodedEvent is a single transformed record, carrying either a text line or
// a structured envelope depending on the configured output format.
type EncodedEvent struct {
	DataType string
	Subtype  string
	Line     string
	Envelope []byte
}

// Response reports the outcome of transforming one batch. Events preserve the
// input record order. Err is set when the batch was cut short by context
// cancellation, in which case Events holds the work completed so far.
type Response struct {
	BatchID       string
	Events        []EncodedEvent
	Dropped       map[string]int
	SkippedFields int
	Err           error
}

// Provider yields the current mapping catalog together with the encoder built
// from it. Implementations swap both atomically on mapping reloads so that a
// batch never observes a catalog/encoder mismatch.
type Provider interface {
	Engine() (*mapping.Catalog, *cef.Generator)
}

// Handle transforms batches of records into encoded events.
type Handle struct {
	conf         *config.Config
	log          logger.Logger
	statsFactory stats.Stats
	provider     Provider

	format    Format
	sourceID  string
	variables map[string]string

	config struct {
		numWorkers          config.ValueLoader[int]
		transformData       config.ValueLoader[bool]
		requireTimestampFor map[string]struct{}
	}
}

// New builds a processor handle from configuration.
func New(conf *config.Config, log logger.Logger, statsFactory stats.Stats, provider Provider) (*Handle, error) {
	h := &Handle{
		conf:         conf,
		log:          log.Child("processor"),
		statsFactory: statsFactory,
		provider:     provider,
	}
	format := Format(conf.GetString("Processor.outputFormat", string(FormatCEF)))
	switch format {
	case FormatCEF, FormatJSON:
		h.format = format
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
	h.sourceID = conf.GetString("Processor.logSourceIdentifier", "netskopece")
	if tenant := conf.GetString("Processor.tenantName", ""); tenant != "" {
		h.variables = map[string]string{"$tenant_name": tenant}
	}
	h.config.numWorkers = conf.GetReloadableIntVar(4, 1, "Processor.numWorkers")
	h.config.transformData = conf.GetReloadableBoolVar(true, "Processor.transformData")
	required := conf.GetStringSliceVar(nil, "Processor.requireTimestampFor")
	h.config.requireTimestampFor = make(map[string]struct{}, len(required))
	for _, dataType := range required {
		h.config.requireTimestampFor[strings.ToLower(dataType)] = struct{}{}
	}
	return h, nil
}

// Transform encodes a batch of records. Records are sharded across workers in
// order preserving chunks; per record failures are logged, counted and never
// abort the batch.
func (h *Handle) Transform(ctx context.Context, batch Batch) Response {
	resp := Response{
		BatchID: uuid.New().String(),
		Dropped: make(map[string]int),
	}
	if len(batch.Records) == 0 {
		return resp
	}
	start := time.Now()
	tags := stats.Tags{"dataType": batch.DataType, "subtype": batch.Subtype}
	defer h.statsFactory.NewTaggedStat("processor.transform_time", stats.TimerType, tags).Since(start)

	catalog, generator := h.provider.Engine()
	if h.config.transformData.Load() {
		h.transform(ctx, catalog, generator, batch, &resp)
	} else {
		h.passthrough(ctx, catalog, batch, &resp)
	}

	h.statsFactory.NewTaggedStat("processor.encoded_events", stats.CountType, tags).Count(len(resp.Events))
	if resp.SkippedFields > 0 {
		h.statsFactory.NewTaggedStat("processor.skipped_fields", stats.CountType, tags).Count(resp.SkippedFields)
	}
	for reason, n := range resp.Dropped {
		h.statsFactory.NewTaggedStat("processor.dropped_records", stats.CountType, stats.Tags{
			"dataType": batch.DataType,
			"subtype":  batch.Subtype,
			"reason":   reason,
		}).Count(n)
	}
	return resp
}

func (h *Handle) transform(ctx context.Context, catalog *mapping.Catalog, generator *cef.Generator, batch Batch, resp *Response) {
	sm, err := catalog.SubtypeMapping(batch.DataType, batch.Subtype)
	if err != nil {
		h.log.Errorn("no mapping configured, skipping batch",
			logger.NewStringField("dataType", batch.DataType),
			logger.NewStringField("subtype", batch.Subtype),
			obskit.Error(err),
		)
		resp.Dropped[dropReasonUnknownSubtype] = len(batch.Records)
		return
	}
	variables := h.variables
	if batch.DataType == mapping.DataTypeWebTx {
		variables = nil
	}

	workers := h.config.numWorkers.Load()
	if workers < 1 {
		workers = 1
	}
	chunkSize := (len(batch.Records) + workers - 1) / workers
	chunks := lo.Chunk(batch.Records, chunkSize)
	chunkEvents := make([][]EncodedEvent, len(chunks))
	chunkDiags := make([]diagnostics, len(chunks))

	g, gCtx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			events := make([]EncodedEvent, 0, len(chunk))
			for _, raw := range chunk {
				if err := gCtx.Err(); err != nil {
					chunkEvents[i] = events
					return err
				}
				if event := h.transformRecord(raw, sm, generator, batch, variables, &chunkDiags[i]); event != nil {
					events = append(events, *event)
				}
			}
			chunkEvents[i] = events
			return nil
		})
	}
	resp.Err = g.Wait()
	for i := range chunks {
		resp.Events = append(resp.Events, chunkEvents[i]...)
		resp.SkippedFields += chunkDiags[i].skippedFields
		for reason, n := range chunkDiags[i].dropped {
			resp.Dropped[reason] += n
		}
	}
}

func (h *Handle) transformRecord(raw json.RawMessage, sm mapping.SubtypeMapping, generator *cef.Generator, batch Batch, variables map[string]string, d *diagnostics) *EncodedEvent {
	record, err := decodeRecord(raw)
	if err != nil {
		h.log.Errorn("skipping record that is not a JSON object",
			logger.NewStringField("dataType", batch.DataType),
			logger.NewStringField("subtype", batch.Subtype),
			obskit.Error(err),
		)
		d.drop(dropReasonMalformedRecord)
		return nil
	}
	if len(record) == 0 {
		d.drop(dropReasonEmptyRecord)
		return nil
	}
	if ts, ok := recordTimestamp(record); ok {
		h.statsFactory.NewTaggedStat("processor.event_lag", stats.TimerType, stats.Tags{
			"dataType": batch.DataType,
			"subtype":  batch.Subtype,
		}).SendTiming(time.Since(ts))
	} else if h.timestampRequired(batch.DataType) {
		d.drop(dropReasonMissingTimestamp)
		return nil
	}

	fields := h.resolveRecord(raw, record, sm, batch, variables, d)
	if !fields.mapped {
		d.drop(dropReasonUnmappedRecord)
		return nil
	}

	event := EncodedEvent{DataType: batch.DataType, Subtype: batch.Subtype}
	switch h.format {
	case FormatJSON:
		envelope, skipped, err := generator.JSONEvent(fields.extensions, batch.DataType, batch.Subtype)
		d.skippedFields += skipped
		if err != nil {
			h.dropEncoding(batch, d, err)
			return nil
		}
		event.Envelope = envelope
	default:
		line, skipped, err := generator.Event(record, fields.headers, fields.extensions, batch.DataType, batch.Subtype, h.sourceID)
		d.skippedFields += skipped
		if err != nil {
			h.dropEncoding(batch, d, err)
			return nil
		}
		event.Line = line
	}
	return &event
}

func (h *Handle) dropEncoding(batch Batch, d *diagnostics, err error) {
	reason := dropReasonEncodingFailure
	if errors.Is(err, cef.ErrEmptyExtension) {
		reason = dropReasonEmptyExtension
	}
	h.log.Errorn("skipping record that produced no event",
		logger.NewStringField("dataType", batch.DataType),
		logger.NewStringField("subtype", batch.Subtype),
		obskit.Error(err),
	)
	d.drop(reason)
}

// resolvedRecord carries the resolved header and extension values of a single
// record. mapped is the OR of the provenance of every resolved value: a
// record where no value came out of the record itself carries no information
// beyond the configured defaults and is dropped.
type resolvedRecord struct {
	headers    map[string]any
	extensions map[string]any
	mapped     bool
}

func (h *Handle) resolveRecord(raw json.RawMessage, record map[string]any, sm mapping.SubtypeMapping, batch Batch, variables map[string]string, d *diagnostics) resolvedRecord {
	out := resolvedRecord{
		headers:    make(map[string]any, len(sm.Header)),
		extensions: make(map[string]any, len(sm.Extension)),
	}
	for name, rule := range sm.Header {
		field, err := resolveField(rule, raw, record)
		if err != nil {
			h.logMissingField(name, batch, err)
			d.skippedFields++
			continue
		}
		out.mapped = out.mapped || field.mapped
		out.headers[name] = substituteVariables(field.value, variables)
	}
	for name, rule := range sm.Extension {
		field, err := resolveField(rule, raw, record)
		if err != nil {
			h.logMissingField(name, batch, err)
			d.skippedFields++
			continue
		}
		out.mapped = out.mapped || field.mapped
		out.extensions[name] = field.value
	}
	return out
}

func (h *Handle) logMissingField(field string, batch Batch, err error) {
	h.log.Debugn("field not resolvable for record, skipping it",
		logger.NewStringField("field", field),
		logger.NewStringField("dataType", batch.DataType),
		logger.NewStringField("subtype", batch.Subtype),
		obskit.Error(err),
	)
}

// substituteVariables replaces a resolved header value that names a mapping
// variable, matched whole and case insensitively, with the variable's value.
func substituteVariables(value any, variables map[string]string) any {
	s, ok := value.(string)
	if !ok || len(variables) == 0 {
		return value
	}
	if replacement, ok := variables[strings.ToLower(s)]; ok {
		return replacement
	}
	return value
}

// passthrough forwards records without rule resolution, reduced to the
// configured field allowlist. Records of a pair with no allowlist configured
// pass through unchanged.
func (h *Handle) passthrough(ctx context.Context, catalog *mapping.Catalog, batch Batch, resp *Response) {
	allowlist, err := catalog.PassthroughFields(batch.DataType, batch.Subtype)
	if err != nil {
		h.log.Infon("no passthrough allowlist configured, forwarding records unchanged",
			logger.NewStringField("dataType", batch.DataType),
			logger.NewStringField("subtype", batch.Subtype),
		)
		allowlist = nil
	}
	for _, raw := range batch.Records {
		if err := ctx.Err(); err != nil {
			resp.Err = err
			return
		}
		record, err := decodeRecord(raw)
		if err != nil {
			h.log.Errorn("skipping record that is not a JSON object",
				logger.NewStringField("dataType", batch.DataType),
				logger.NewStringField("subtype", batch.Subtype),
				obskit.Error(err),
			)
			resp.Dropped[dropReasonMalformedRecord]++
			continue
		}
		if len(record) == 0 {
			resp.Dropped[dropReasonEmptyRecord]++
			continue
		}
		event := EncodedEvent{DataType: batch.DataType, Subtype: batch.Subtype}
		if len(allowlist) == 0 {
			event.Envelope = raw
		} else {
			filtered := make(map[string]any, len(allowlist))
			for _, key := range allowlist {
				if value, ok := record[key]; ok {
					filtered[key] = value
				}
			}
			envelope, err := jsonrs.Marshal(filtered)
			if err != nil {
				resp.Dropped[dropReasonEncodingFailure]++
				continue
			}
			event.Envelope = envelope
		}
		resp.Events = append(resp.Events, event)
	}
}

func (h *Handle) timestampRequired(dataType string) bool {
	_, ok := h.config.requireTimestampFor[strings.ToLower(dataType)]
	return ok
}

// decodeRecord decodes a raw record into a map, keeping numbers as
// json.Number so that wide epoch values survive with their digits intact.
func decodeRecord(raw json.RawMessage) (map[string]any, error) {
	decoder := jsonrs.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var record map[string]any
	if err := decoder.Decode(&record); err != nil {
		return nil, err
	}
	return record, nil
}

// recordTimestamp derives the base event time of a record from its timestamp
// field, accepting epoch values and most textual formats.
func recordTimestamp(record map[string]any) (time.Time, bool) {
	value, ok := record["timestamp"]
	if !ok {
		return time.Time{}, false
	}
	return misc.GetParsedTimestamp(cast.ToString(value))
}

type diagnostics struct {
	dropped       map[string]int
	skippedFields int
}

func (d *diagnostics) drop(reason string) {
	if d.dropped == nil {
		d.dropped = make(map[string]int)
	}
	d.dropped[reason]++
}
