package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/alexeyco/simpletable"
	"github.com/urfave/cli/v2"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/cefstream/cefstream/mapping"
)

var DefaultList []*cli.Command

func init() {
	DefaultList = append(DefaultList, MAPPING())
}

func MAPPING() *cli.Command {
	c := &cli.Command{
		Name:  "mapping",
		Usage: "inspect mapping documents",
		Subcommands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "load a mapping document and report the first violation",
				Action:    MappingValidate,
				ArgsUsage: "[file]",
			},
			{
				Name:      "show",
				Usage:     "summarize data types, subtypes and rule counts",
				Action:    MappingShow,
				ArgsUsage: "[file]",
			},
		},
	}

	return c
}

// mappingPath prefers the positional argument and falls back to the path the
// service itself would load.
func mappingPath(c *cli.Context) string {
	if c.Args().Len() > 0 {
		return c.Args().Get(0)
	}
	return config.GetString("Mapping.path", "mapping.json")
}

func loadCatalog(path string) (*mapping.Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return mapping.Load(raw, logger.NOP)
}

func MappingValidate(c *cli.Context) error {
	path := mappingPath(c)
	if _, err := loadCatalog(path); err != nil {
		return err
	}

	fmt.Printf("%s: ok\n", path)

	return nil
}

func MappingShow(c *cli.Context) error {
	catalog, err := loadCatalog(mappingPath(c))
	if err != nil {
		return err
	}

	fmt.Printf("format version %s, delimiter %q, %d distinct output fields\n",
		catalog.Version(), catalog.Delimiter(), len(catalog.Fields()))

	table := simpletable.New()
	table.Header = &simpletable.Header{
		Cells: []*simpletable.Cell{
			{Align: simpletable.AlignCenter, Text: "Data Type"},
			{Align: simpletable.AlignCenter, Text: "Subtype"},
			{Align: simpletable.AlignCenter, Text: "Headers"},
			{Align: simpletable.AlignCenter, Text: "Extensions"},
		},
	}

	for _, dataType := range catalog.DataTypes() {
		for _, subtype := range catalog.Subtypes(dataType) {
			sm, err := catalog.SubtypeMapping(dataType, subtype)
			if err != nil {
				return err
			}

			r := []*simpletable.Cell{
				{Align: simpletable.AlignLeft, Text: dataType},
				{Align: simpletable.AlignLeft, Text: subtype},
				{Align: simpletable.AlignRight, Text: strconv.Itoa(len(sm.Header))},
				{Align: simpletable.AlignRight, Text: strconv.Itoa(len(sm.Extension))},
			}

			table.Body.Cells = append(table.Body.Cells, r)
		}
	}

	table.SetStyle(simpletable.StyleCompactLite)
	fmt.Println(table.String())

	passthrough := catalog.PassthroughDataTypes()
	if len(passthrough) == 0 {
		return nil
	}

	raw := simpletable.New()
	raw.Header = &simpletable.Header{
		Cells: []*simpletable.Cell{
			{Align: simpletable.AlignCenter, Text: "Raw Data Type"},
			{Align: simpletable.AlignCenter, Text: "Subtype"},
			{Align: simpletable.AlignCenter, Text: "Allowlist"},
		},
	}

	for _, dataType := range passthrough {
		for _, subtype := range catalog.PassthroughSubtypes(dataType) {
			fields, err := catalog.PassthroughFields(dataType, subtype)
			if err != nil {
				return err
			}
			allow := "all fields"
			if len(fields) > 0 {
				allow = strconv.Itoa(len(fields)) + " fields"
			}

			r := []*simpletable.Cell{
				{Align: simpletable.AlignLeft, Text: dataType},
				{Align: simpletable.AlignLeft, Text: subtype},
				{Align: simpletable.AlignLeft, Text: allow},
			}

			raw.Body.Cells = append(raw.Body.Cells, r)
		}
	}

	raw.SetStyle(simpletable.StyleCompactLite)
	fmt.Println(raw.String())

	return nil
}
