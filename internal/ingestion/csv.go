package ingestion

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// CSV column names of the CFPB complaint export.
const (
	ColumnComplaintID = "Complaint ID"
	ColumnProduct     = "Product"
	ColumnIssue       = "Issue"
	ColumnDate        = "Date received"
	ColumnNarrative   = "Consumer complaint narrative"
)

// Complaint is one usable row of the complaints export.
type Complaint struct {
	// ID is the CFPB complaint identifier.
	ID string
	// Category is the product category the row's product maps onto.
	Category string
	// Issue is the issue label filed with the complaint.
	Issue string
	// DateReceived is the date the complaint was received, as exported.
	DateReceived string
	// Narrative is the cleaned consumer narrative.
	Narrative string
}

// ReadStats counts what ReadComplaints kept and skipped.
type ReadStats struct {
	// Rows is the number of data rows read.
	Rows int `json:"rows_read"`
	// Kept is the number of complaints returned.
	Kept int `json:"rows_kept"`
	// NoNarrative is the number of rows skipped for an empty narrative.
	NoNarrative int `json:"rows_skipped_no_narrative"`
	// OtherProduct is the number of rows skipped for a product outside the
	// category vocabulary.
	OtherProduct int `json:"rows_skipped_product"`
}

// ReadComplaints reads a complaints CSV with a header row. Rows without a
// narrative or with an unmapped product are skipped and counted. limit caps
// the number of complaints returned; zero or less reads everything.
func ReadComplaints(r io.Reader, limit int) ([]Complaint, ReadStats, error) {
	var stats ReadStats

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, stats, fmt.Errorf("ingestion: csv is empty")
		}
		return nil, stats, fmt.Errorf("ingestion: read csv header: %w", err)
	}
	cols, err := columnIndex(header)
	if err != nil {
		return nil, stats, err
	}

	var out []Complaint
	for limit <= 0 || len(out) < limit {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("ingestion: read csv row %d: %w", stats.Rows+2, err)
		}
		stats.Rows++

		narrative := CleanNarrative(field(rec, cols[ColumnNarrative]))
		if narrative == "" {
			stats.NoNarrative++
			continue
		}
		category, ok := CategoryForProduct(field(rec, cols[ColumnProduct]))
		if !ok {
			stats.OtherProduct++
			continue
		}
		out = append(out, Complaint{
			ID:           strings.TrimSpace(field(rec, cols[ColumnComplaintID])),
			Category:     category,
			Issue:        strings.TrimSpace(field(rec, cols[ColumnIssue])),
			DateReceived: strings.TrimSpace(field(rec, cols[ColumnDate])),
			Narrative:    narrative,
		})
	}
	stats.Kept = len(out)
	return out, stats, nil
}

// columnIndex locates the required columns by case-insensitive name.
func columnIndex(header []string) (map[string]int, error) {
	required := []string{ColumnComplaintID, ColumnProduct, ColumnNarrative}
	all := []string{ColumnComplaintID, ColumnProduct, ColumnNarrative, ColumnIssue, ColumnDate}

	cols := make(map[string]int, len(all))
	for _, c := range all {
		cols[c] = -1
	}
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		for _, want := range all {
			if strings.EqualFold(h, want) {
				cols[want] = i
			}
		}
	}
	var missing []string
	for _, want := range required {
		if cols[want] < 0 {
			missing = append(missing, fmt.Sprintf("%q", want))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("ingestion: csv is missing required column(s) %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

// field returns rec[i], or "" when the column is absent or the row is short.
func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}
