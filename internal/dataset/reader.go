package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

type storedRecord struct {
	Image        string  `json:"image"`
	RawCaption   string  `json:"raw_caption"`
	FinalCaption *string `json:"final_caption"`
}

// LoadRecords reads a captions.json file. A record without final_caption
// falls back to its raw caption.
func LoadRecords(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read captions: %w", err)
	}

	var stored []storedRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("parse captions %s: %w", path, err)
	}

	records := make([]Record, 0, len(stored))
	for _, item := range stored {
		record := Record{Image: item.Image, RawCaption: item.RawCaption, FinalCaption: item.RawCaption}
		if item.FinalCaption != nil {
			record.FinalCaption = *item.FinalCaption
		}
		records = append(records, record)
	}
	return records, nil
}

// OutputsExist reports whether dir already holds batch caption outputs.
func OutputsExist(dir string) (bool, error) {
	for _, name := range []string{CaptionsJSONName, CaptionsCSVName} {
		_, err := os.Stat(filepath.Join(dir, name))
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("stat %s: %w", name, err)
		}
	}
	return false, nil
}
