package extract

import "strings"

// RawTable is a loosely structured table as delivered by table
// extraction: a header row plus data rows, with page/table provenance.
type RawTable struct {
	Page   int
	Index  int
	Header []string
	Rows   [][]string
}

// SampleRecord is one typed measurement row mapped out of a sample
// table. Numeric fields are nil when the source cell was absent or
// unparsable. Provenance indices allow tracing a record back to its
// exact position in the document.
type SampleRecord struct {
	Name          string
	VolumeUL      *float64
	QubitConc     *float64
	NanodropConc  *float64
	RatioA260A280 *float64
	RatioA260A230 *float64

	Page  int
	Table int
	Row   int
}

// Column synonym lists in priority order. The first header cell
// containing any synonym resolves the logical field.
var (
	nameSynonyms     = []string{"sample name", "name", "sample"}
	volumeSynonyms   = []string{"volume (ul)", "volume", "vol"}
	qubitSynonyms    = []string{"qubit conc", "qubit"}
	nanodropSynonyms = []string{"nanodrop conc", "nanodrop"}
	ratio280Synonyms = []string{"a260/a280", "260/280", "260 280"}
	ratio230Synonyms = []string{"a260/a230", "260/230", "260 230"}

	// Indicators used for table admission. Many document tables are
	// not sample tables; a table qualifies only when its header names
	// samples and at least one concentration measurement.
	sampleNameIndicators    = []string{"sample name", "sample id", "sample"}
	concentrationIndicators = []string{"qubit", "nanodrop", "conc", "ng/ul"}
)

const columnAbsent = -1

type columnMap struct {
	name     int
	volume   int
	qubit    int
	nanodrop int
	ratio280 int
	ratio230 int
}

// TableMapper resolves loosely structured tables into typed sample
// measurement records via fuzzy header matching.
type TableMapper struct{}

// NewTableMapper returns a mapper with the built-in synonym lists.
func NewTableMapper() *TableMapper {
	return &TableMapper{}
}

// Map converts a raw table into sample records. Tables whose header
// does not look like a sample table are skipped in full. Rows with no
// parsable content yield no record.
func (m *TableMapper) Map(table RawTable) []SampleRecord {
	header := NormalizeHeader(table.Header)
	if !admissible(header) {
		return nil
	}

	cols := resolveColumns(header)
	var records []SampleRecord

	for rowIdx, row := range table.Rows {
		record := SampleRecord{
			Name:          cellString(row, cols.name),
			VolumeUL:      cellFloat(row, cols.volume),
			QubitConc:     cellFloat(row, cols.qubit),
			NanodropConc:  cellFloat(row, cols.nanodrop),
			RatioA260A280: cellFloat(row, cols.ratio280),
			RatioA260A230: cellFloat(row, cols.ratio230),
			Page:          table.Page,
			Table:         table.Index,
			Row:           rowIdx + 1,
		}
		if record.empty() {
			continue
		}
		records = append(records, record)
	}
	return records
}

// admissible reports whether a normalized header identifies a sample
// table: it must carry a sample-name indicator and at least one
// concentration indicator.
func admissible(header []string) bool {
	return containsAny(header, sampleNameIndicators) &&
		containsAny(header, concentrationIndicators)
}

func containsAny(header []string, indicators []string) bool {
	for _, cell := range header {
		for _, indicator := range indicators {
			if strings.Contains(cell, indicator) {
				return true
			}
		}
	}
	return false
}

// resolveColumns finds the first column matching each logical field's
// synonym list; unresolved fields map to columnAbsent.
func resolveColumns(header []string) columnMap {
	return columnMap{
		name:     fuzzyFind(header, nameSynonyms),
		volume:   fuzzyFind(header, volumeSynonyms),
		qubit:    fuzzyFind(header, qubitSynonyms),
		nanodrop: fuzzyFind(header, nanodropSynonyms),
		ratio280: fuzzyFind(header, ratio280Synonyms),
		ratio230: fuzzyFind(header, ratio230Synonyms),
	}
}

func fuzzyFind(header []string, synonyms []string) int {
	for i, cell := range header {
		for _, synonym := range synonyms {
			if strings.Contains(cell, synonym) {
				return i
			}
		}
	}
	return columnAbsent
}

func cellString(row []string, col int) string {
	if col == columnAbsent || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func cellFloat(row []string, col int) *float64 {
	if col == columnAbsent || col >= len(row) {
		return nil
	}
	value, ok := ParseMeasurement(row[col])
	if !ok {
		return nil
	}
	return &value
}

// empty reports whether no resolved field produced a value; such rows
// are blank trailing rows and yield no record.
func (r SampleRecord) empty() bool {
	return r.Name == "" &&
		r.VolumeUL == nil &&
		r.QubitConc == nil &&
		r.NanodropConc == nil &&
		r.RatioA260A280 == nil &&
		r.RatioA260A230 == nil
}
