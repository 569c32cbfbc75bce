package dataset

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path/filepath"

	"captionkit/internal/fileutil"
)

// Paths lists the files produced by WriteBatch. IssuesCSV is empty when the
// batch had no issues.
type Paths struct {
	CaptionsJSON string
	CaptionsCSV  string
	IssuesCSV    string
}

// WriteBatch persists records and issues into dir. caption_issues.csv is
// written only when issues is non-empty; otherwise a stale copy is removed.
func WriteBatch(dir string, records []Record, issues []Issue) (Paths, error) {
	paths := Paths{
		CaptionsJSON: filepath.Join(dir, CaptionsJSONName),
		CaptionsCSV:  filepath.Join(dir, CaptionsCSVName),
	}
	if err := SaveRecords(paths.CaptionsJSON, paths.CaptionsCSV, records); err != nil {
		return Paths{}, err
	}

	issuesPath := filepath.Join(dir, IssuesCSVName)
	if len(issues) == 0 {
		if err := fileutil.RemoveIfExists(issuesPath); err != nil {
			return Paths{}, fmt.Errorf("remove stale issues file: %w", err)
		}
		return paths, nil
	}

	rows := make([][]string, 0, len(issues))
	for _, issue := range issues {
		rows = append(rows, []string{issue.Image, issue.Issue})
	}
	data, err := encodeCSV(issueHeader, rows)
	if err != nil {
		return Paths{}, fmt.Errorf("encode issues: %w", err)
	}
	if err := fileutil.WriteFileAtomic(issuesPath, data, 0o644); err != nil {
		return Paths{}, fmt.Errorf("write issues: %w", err)
	}
	paths.IssuesCSV = issuesPath
	return paths, nil
}

// SaveRecords writes records as an indented JSON array to jsonPath and as a
// CSV table to csvPath, preserving slice order.
func SaveRecords(jsonPath, csvPath string, records []Record) error {
	if records == nil {
		records = []Record{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode captions json: %w", err)
	}
	if err := fileutil.WriteFileAtomic(jsonPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write captions json: %w", err)
	}

	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, []string{record.Image, record.RawCaption, record.FinalCaption})
	}
	data, err := encodeCSV(recordHeader, rows)
	if err != nil {
		return fmt.Errorf("encode captions csv: %w", err)
	}
	if err := fileutil.WriteFileAtomic(csvPath, data, 0o644); err != nil {
		return fmt.Errorf("write captions csv: %w", err)
	}
	return nil
}

func encodeCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
