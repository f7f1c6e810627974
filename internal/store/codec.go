package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/neurotrace/connectome/internal/domain"
)

var header = []string{"bodyId", "weight", "percent", "type"}

// EncodeTable writes table rows as CSV with the partner identifier as the row label.
func EncodeTable(w io.Writer, table domain.PartnerTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range table.Rows {
		typ := row.Type
		if typ == "" {
			typ = domain.Unknown
		}
		record := []string{
			row.Partner.String(),
			strconv.FormatInt(row.Weight, 10),
			strconv.FormatFloat(row.Percent, 'f', -1, 64),
			typ,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// DecodeTable reads a table written by EncodeTable. The type column is optional so
// files holding only identifier, weight and percent are accepted.
func DecodeTable(r io.Reader, id domain.NeuronID) (domain.PartnerTable, error) {
	table := domain.PartnerTable{Neuron: id, Direction: domain.Downstream}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return table, fmt.Errorf("read result %d: %w", id, err)
	}
	if len(records) == 0 {
		return table, nil
	}

	cols := columnIndex(records[0])
	weightCol, okW := cols["weight"]
	percentCol, okP := cols["percent"]
	if !okW || !okP {
		return table, fmt.Errorf("read result %d: missing weight or percent column", id)
	}
	typeCol, hasType := cols["type"]

	for line, rec := range records[1:] {
		partner, err := domain.ParseNeuronID(rec[0])
		if err != nil {
			return table, fmt.Errorf("read result %d line %d: %w", id, line+2, err)
		}
		weight, err := strconv.ParseInt(field(rec, weightCol), 10, 64)
		if err != nil {
			return table, fmt.Errorf("read result %d line %d: weight: %w", id, line+2, err)
		}
		percent, err := strconv.ParseFloat(field(rec, percentCol), 64)
		if err != nil {
			return table, fmt.Errorf("read result %d line %d: percent: %w", id, line+2, err)
		}
		conn := domain.Connection{Partner: partner, Weight: weight, Percent: percent, Type: domain.Unknown}
		if hasType && field(rec, typeCol) != "" {
			conn.Type = field(rec, typeCol)
		}
		table.Rows = append(table.Rows, conn)
	}
	return table, nil
}

func columnIndex(head []string) map[string]int {
	cols := make(map[string]int, len(head))
	for i, name := range head {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	// older files label the count column "count"
	if _, ok := cols["weight"]; !ok {
		if i, ok := cols["count"]; ok {
			cols["weight"] = i
		}
	}
	return cols
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
