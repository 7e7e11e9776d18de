package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/smallnest/tenantflow/ingestion"
	"github.com/spf13/cobra"
)

func (c *cli) newIngestCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "ingest <kind> [file]",
		Short: "Ingest a batch of records",
		Long: `Validate, normalize and store a batch of records of one kind (` + kindList() + `).

The batch is read from the file or from stdin, as CSV with a header row or
as JSON: either an array of objects or {"records": [...]}. The format
follows the file extension unless --format is given.

Examples:
  tenantflow ingest teams teams.csv
  cat players.json | tenantflow ingest players --format json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := ingestion.ParseKind(args[0])
			if err != nil {
				return err
			}

			var in io.Reader = cmd.InOrStdin()
			if len(args) == 2 && args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
				if format == "" {
					format = strings.TrimPrefix(strings.ToLower(filepath.Ext(args[1])), ".")
				}
			}

			records, err := readRecords(in, format)
			if err != nil {
				return err
			}

			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			result, runErr := a.RunIngestion(cmd.Context(), kind, records)
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "input format: csv or json")
	return cmd
}

func kindList() string {
	names := make([]string, 0, len(ingestion.Kinds()))
	for _, k := range ingestion.Kinds() {
		names = append(names, string(k))
	}
	return strings.Join(names, ", ")
}

func readRecords(r io.Reader, format string) ([]ingestion.Record, error) {
	switch format {
	case "csv":
		return ingestion.ParseCSV(r)
	case "", "json":
	default:
		return nil, fmt.Errorf("unknown input format %q", format)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if data[0] == '[' {
		var records []ingestion.Record
		if err := dec.Decode(&records); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
		return records, nil
	}
	var batch struct {
		Records []ingestion.Record `json:"records"`
	}
	if err := dec.Decode(&batch); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return batch.Records, nil
}
