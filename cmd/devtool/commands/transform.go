package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"

	"github.com/cefstream/cefstream/cef"
	"github.com/cefstream/cefstream/mapping"
	"github.com/cefstream/cefstream/processor"
	"github.com/cefstream/cefstream/source"
)

func init() {
	DefaultList = append(DefaultList, TRANSFORM())
}

func TRANSFORM() *cli.Command {
	c := &cli.Command{
		Name:   "transform",
		Usage:  "run records through the pipeline once and print the encoded events",
		Action: TransformRun,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "mapping",
				Aliases: []string{"m"},
				Usage:   "path to the mapping document",
				Value:   "mapping.json",
			},
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "newline delimited JSON records, - reads stdin",
				Value:   "-",
			},
			&cli.StringFlag{
				Name:  "data-type",
				Usage: "data type of the input records",
				Value: "alerts",
			},
			&cli.StringFlag{
				Name:  "subtype",
				Usage: "subtype of the input records",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "output format, cef or json",
				Value: string(processor.FormatCEF),
			},
			&cli.StringFlag{
				Name:  "source-id",
				Usage: "log source identifier stamped on every event",
				Value: "netskopece",
			},
			&cli.StringFlag{
				Name:  "tenant",
				Usage: "tenant name substituted into mapping defaults",
			},
			&cli.BoolFlag{
				Name:  "raw",
				Usage: "forward records as structured envelopes without field resolution",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "records per batch",
				Value: 100,
			},
		},
	}

	return c
}

// staticEngine pins a single catalog and encoder pair, a one shot run has no
// reloading.
type staticEngine struct {
	catalog   *mapping.Catalog
	generator *cef.Generator
}

func (e staticEngine) Engine() (*mapping.Catalog, *cef.Generator) {
	return e.catalog, e.generator
}

func TransformRun(c *cli.Context) error {
	raw, err := os.ReadFile(c.String("mapping"))
	if err != nil {
		return err
	}
	catalog, err := mapping.Load(raw, logger.NOP)
	if err != nil {
		return err
	}

	conf := config.New()
	conf.Set("Processor.outputFormat", c.String("format"))
	conf.Set("Processor.logSourceIdentifier", c.String("source-id"))
	if tenant := c.String("tenant"); tenant != "" {
		conf.Set("Processor.tenantName", tenant)
	}
	if c.Bool("raw") {
		conf.Set("Processor.transformData", false)
	}

	proc, err := processor.New(conf, logger.NOP, stats.NOP, staticEngine{
		catalog:   catalog,
		generator: cef.New(catalog, logger.NOP),
	})
	if err != nil {
		return err
	}

	src, err := source.NewNDJSON(source.NDJSONConfig{
		Path:      c.String("input"),
		DataType:  c.String("data-type"),
		Subtype:   c.String("subtype"),
		BatchSize: c.Int("batch-size"),
	}, logger.NOP)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	out := bufio.NewWriter(os.Stdout)

	var records, events int
	dropped := map[string]int{}
	for {
		batch, err := src.Next(c.Context)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		resp := proc.Transform(c.Context, batch)
		if resp.Err != nil {
			return resp.Err
		}

		records += len(batch.Records)
		events += len(resp.Events)
		for reason, n := range resp.Dropped {
			dropped[reason] += n
		}

		for _, event := range resp.Events {
			if len(event.Envelope) > 0 {
				_, _ = out.Write(event.Envelope)
			} else {
				_, _ = out.WriteString(event.Line)
			}
			_ = out.WriteByte('\n')
		}
	}
	if err := out.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "%d records in, %d events out\n", records, events)
	reasons := lo.Keys(dropped)
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(os.Stderr, "  dropped %d: %s\n", dropped[reason], reason)
	}

	return nil
}
