package extract

import (
	"regexp"
	"strings"
)

// Canonical metadata field names produced by the field extractor.
const (
	FieldIdentifier        = "identifier"
	FieldAsOf              = "as_of"
	FieldExpiresOn         = "expires_on"
	FieldServiceRequested  = "service_requested"
	FieldRequester         = "requester"
	FieldRequesterEmail    = "requester_email"
	FieldPhone             = "phone"
	FieldLab               = "lab"
	FieldBillingAddress    = "billing_address"
	FieldPIs               = "pis"
	FieldFinancialContacts = "financial_contacts"
	FieldRequestSummary    = "request_summary"
	FieldFormsText         = "forms_text"
	FieldWillSubmitDNAFor  = "will_submit_dna_for"
	FieldTypeOfSample      = "type_of_sample"
	FieldHumanDNA          = "human_dna"
	FieldSourceOrganism    = "source_organism"
	FieldSampleBuffer      = "sample_buffer"
	FieldFlowCellType      = "flow_cell_type"
)

// Default lookahead budgets, in lines, for value accumulation.
const (
	DefaultScalarLookahead      = 5
	DefaultMultiSelectLookahead = 20
)

// MultiSelectSeparator joins the selected options of a checkbox field.
const MultiSelectSeparator = ", "

type fieldKind int

const (
	kindScalar fieldKind = iota
	kindMultiSelect
	kindYesNo
)

type fieldSpec struct {
	label    string // lower-cased, colon-stripped label prefix
	name     string
	kind     fieldKind
	dateLike bool
}

// fieldRegistry maps the label prefixes found at the top of submission
// forms to canonical field names. Labels are matched case-insensitively
// with an optional trailing colon.
var fieldRegistry = []fieldSpec{
	{label: "identifier", name: FieldIdentifier},
	{label: "as of", name: FieldAsOf, dateLike: true},
	{label: "expires on", name: FieldExpiresOn, dateLike: true},
	{label: "service requested", name: FieldServiceRequested},
	{label: "requester", name: FieldRequester},
	{label: "e-mail", name: FieldRequesterEmail},
	{label: "phone", name: FieldPhone},
	{label: "lab", name: FieldLab},
	{label: "billing address", name: FieldBillingAddress},
	{label: "pis", name: FieldPIs},
	{label: "financial contacts", name: FieldFinancialContacts},
	{label: "request summary", name: FieldRequestSummary},
	{label: "forms", name: FieldFormsText},
	{label: "i will be submitting dna for", name: FieldWillSubmitDNAFor, kind: kindMultiSelect},
	{label: "type of sample", name: FieldTypeOfSample, kind: kindMultiSelect},
	{label: "do these samples contain human dna?", name: FieldHumanDNA, kind: kindYesNo},
	{label: "source organism", name: FieldSourceOrganism},
	{label: "sample buffer", name: FieldSampleBuffer, kind: kindMultiSelect},
	{label: "flow cell selection", name: FieldFlowCellType, kind: kindMultiSelect},
}

// stopSections are document headings that terminate value accumulation.
// A label's value never runs past the start of the next form section.
var stopSections = map[string]bool{
	"sample information":                  true,
	"sample summary":                      true,
	"bioinformatics":                      true,
	"data delivery":                       true,
	"file format":                         true,
	"additional comments / special needs": true,
}

// Selection markers as they survive text extraction. A filled box or
// bullet marks a chosen option; hollow boxes never do. Documents using
// other marker conventions silently extract nothing, which is the
// accepted precision limit for checkbox fields.
var (
	selectedGlyphs  = []string{"☒", "☑", "✓", "■", "●"}
	bracketSelected = regexp.MustCompile(`\[\s*[xX]\s*\]`)
	bracketEmpty    = regexp.MustCompile(`\[\s*\]`)

	yesToken = regexp.MustCompile(`(?i)\byes\b`)
	noToken  = regexp.MustCompile(`(?i)\bno\b`)
)

// FieldExtractor turns the ordered front-matter lines of a submission
// form into a canonical field map. Extraction is heuristic: a field
// that cannot be located is simply absent from the result, and no
// single malformed field aborts the pass.
type FieldExtractor struct {
	scalarLookahead int
	multiLookahead  int
}

// NewFieldExtractor returns an extractor with the default lookahead
// budgets.
func NewFieldExtractor() *FieldExtractor {
	return &FieldExtractor{
		scalarLookahead: DefaultScalarLookahead,
		multiLookahead:  DefaultMultiSelectLookahead,
	}
}

// Extract runs a single forward pass over lines and returns the fields
// it could locate. An empty input yields an empty map.
//
// The pass is a small state machine: SCANNING until a label is
// detected, then one of the accumulating states below, which consume
// lines up to their lookahead budget and hand the index back.
func (e *FieldExtractor) Extract(lines []string) map[string]string {
	fields := make(map[string]string)

	for i := 0; i < len(lines); {
		spec, inline, ok := detectLabel(lines[i])
		if !ok {
			i++
			continue
		}

		// An inline "Label: value" wins immediately regardless of kind.
		if inline != "" {
			setField(fields, spec, inline)
			i++
			continue
		}

		switch spec.kind {
		case kindMultiSelect:
			i = e.accumulateMultiSelect(lines, i, spec, fields)
		case kindYesNo:
			i = e.accumulateYesNo(lines, i, spec, fields)
		default:
			i = e.accumulateScalar(lines, i, spec, fields)
		}
	}
	return fields
}

// detectLabel reports whether line begins a known label, returning the
// matching spec and any inline value after the colon.
func detectLabel(line string) (fieldSpec, string, bool) {
	trimmed := strings.TrimSpace(line)
	lowered := strings.ToLower(trimmed)
	bare := strings.TrimSuffix(lowered, ":")

	for _, spec := range fieldRegistry {
		if bare == spec.label {
			return spec, "", true
		}
		if strings.HasPrefix(lowered, spec.label+":") {
			inline := strings.TrimSpace(trimmed[len(spec.label)+1:])
			return spec, inline, true
		}
	}
	return fieldSpec{}, "", false
}

func isStopSection(line string) bool {
	return stopSections[strings.ToLower(strings.TrimSpace(line))]
}

// accumulateScalar collects the non-blank lines following a label until
// another label, a stop-section heading, or the lookahead budget ends
// the value. Returns the index where scanning resumes.
func (e *FieldExtractor) accumulateScalar(lines []string, start int, spec fieldSpec, fields map[string]string) int {
	var collected []string
	j := start + 1
	limit := start + 1 + e.scalarLookahead

	for ; j < len(lines) && j < limit; j++ {
		text := strings.TrimSpace(lines[j])
		if text == "" {
			continue
		}
		if _, _, ok := detectLabel(lines[j]); ok {
			break
		}
		if isStopSection(lines[j]) {
			break
		}
		collected = append(collected, text)
	}

	if len(collected) == 0 {
		return j
	}
	value := strings.Join(collected, " ")

	// Accumulation must not swallow document structure: a date field
	// holding a section title means nothing was actually extracted.
	if spec.dateLike && isStopSection(value) {
		return j
	}
	setField(fields, spec, value)
	return j
}

// accumulateMultiSelect collects candidate option lines within the
// longer checkbox lookahead and keeps only those carrying a selection
// marker. Unmarked option lines are discarded.
func (e *FieldExtractor) accumulateMultiSelect(lines []string, start int, spec fieldSpec, fields map[string]string) int {
	candidates, next := e.collectCandidates(lines, start)

	var selected []string
	for _, line := range candidates {
		if !hasSelectionMarker(line) {
			continue
		}
		if text := optionText(line); text != "" {
			selected = append(selected, text)
		}
	}
	if len(selected) > 0 {
		setField(fields, spec, strings.Join(selected, MultiSelectSeparator))
	}
	return next
}

// accumulateYesNo resolves a binary field: the first candidate line
// carrying both a yes/no token and a selection marker wins. No match
// leaves the field unset.
func (e *FieldExtractor) accumulateYesNo(lines []string, start int, spec fieldSpec, fields map[string]string) int {
	candidates, next := e.collectCandidates(lines, start)

	for _, line := range candidates {
		if !hasSelectionMarker(line) {
			continue
		}
		if yesToken.MatchString(line) {
			setField(fields, spec, "Yes")
			break
		}
		if noToken.MatchString(line) {
			setField(fields, spec, "No")
			break
		}
	}
	return next
}

// collectCandidates gathers the non-blank lines in the multi-select
// window following a label, stopping early at the next label or
// section heading.
func (e *FieldExtractor) collectCandidates(lines []string, start int) ([]string, int) {
	var candidates []string
	j := start + 1
	limit := start + 1 + e.multiLookahead

	for ; j < len(lines) && j < limit; j++ {
		if _, _, ok := detectLabel(lines[j]); ok {
			break
		}
		if isStopSection(lines[j]) {
			break
		}
		if text := strings.TrimSpace(lines[j]); text != "" {
			candidates = append(candidates, text)
		}
	}
	return candidates, j
}

func hasSelectionMarker(line string) bool {
	for _, glyph := range selectedGlyphs {
		if strings.Contains(line, glyph) {
			return true
		}
	}
	return bracketSelected.MatchString(line)
}

// optionText strips selection markers from an option line.
func optionText(line string) string {
	text := bracketSelected.ReplaceAllString(line, "")
	text = bracketEmpty.ReplaceAllString(text, "")
	for _, glyph := range append(append([]string{}, selectedGlyphs...), "☐") {
		text = strings.ReplaceAll(text, glyph, "")
	}
	return strings.TrimSpace(text)
}

func setField(fields map[string]string, spec fieldSpec, value string) {
	if value == "" {
		return
	}
	fields[spec.name] = value
}

// HumanDNA derives the contains-human-DNA boolean from an extracted
// field map. The second return value reports whether the answer was
// present at all.
func HumanDNA(fields map[string]string) (bool, bool) {
	switch fields[FieldHumanDNA] {
	case "Yes":
		return true, true
	case "No":
		return false, true
	}
	return false, false
}
