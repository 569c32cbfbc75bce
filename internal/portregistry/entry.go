package portregistry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"captionkit/internal/services"
)

// Meta describes the service holding a reservation.
type Meta struct {
	Kind      string
	ImageRef  string
	GPU       bool
	CacheFlag bool
}

// Request asks for port on behalf of the (Name, StoragePath) pair.
type Request struct {
	Name        string
	Port        int
	StoragePath string
	Meta        Meta
}

// Result reports the outcome of a granted reservation.
type Result struct {
	Granted bool
	// AlreadyHeld is set when the same pair already held the port.
	AlreadyHeld bool
	// Tracked is false when the registry is disabled and nothing was recorded.
	Tracked bool
	Holder  string
}

// Entry is one recorded reservation.
type Entry struct {
	Name        string    `json:"name"`
	Port        int       `json:"port"`
	Kind        string    `json:"kind"`
	ImageRef    string    `json:"image_ref"`
	GPU         bool      `json:"gpu"`
	CacheFlag   bool      `json:"cache_flag"`
	StoragePath string    `json:"storage_path"`
	Created     Timestamp `json:"created"`
}

func newEntry(req Request, now time.Time) Entry {
	return Entry{
		Name:        req.Name,
		Port:        req.Port,
		Kind:        req.Meta.Kind,
		ImageRef:    req.Meta.ImageRef,
		GPU:         req.Meta.GPU,
		CacheFlag:   req.Meta.CacheFlag,
		StoragePath: req.StoragePath,
		Created:     Timestamp{Time: now.UTC().Truncate(time.Second)},
	}
}

// sameOwner reports whether e was registered by the pair in req.
func (e Entry) sameOwner(name, storagePath string) bool {
	return e.Name == name && e.StoragePath == storagePath
}

// ConflictError is returned when a port is held by a different pair.
type ConflictError struct {
	Port        int
	Holder      string
	StoragePath string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("port %d already reserved by %q (storage %s)", e.Port, e.Holder, e.StoragePath)
}

func (e *ConflictError) Unwrap() error {
	return services.ErrRegistryConflict
}

// Timestamp encodes as RFC 3339. Values written by other tools in a format
// that does not parse are kept verbatim so a rewrite does not lose them.
type Timestamp struct {
	time.Time
	raw string
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// String returns the RFC 3339 form, or the original text when it did not parse.
func (t Timestamp) String() string {
	if t.Time.IsZero() {
		return t.raw
	}
	return t.Time.UTC().Format(time.RFC3339)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.Time.IsZero() && t.raw != "" {
		return json.Marshal(t.raw)
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("created: %w", err)
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			*t = Timestamp{Time: parsed}
			return nil
		}
	}
	*t = Timestamp{raw: value}
	return nil
}

// decide applies the ownership rule to the current entries. It returns
// held=true when the pair already owns port, or the conflicting entry.
func decide(entries []Entry, req Request) (held bool, conflict *Entry) {
	for i := range entries {
		if entries[i].Port == req.Port && entries[i].sameOwner(req.Name, req.StoragePath) {
			return true, nil
		}
	}
	for i := range entries {
		if entries[i].Port == req.Port {
			return false, &entries[i]
		}
	}
	return false, nil
}
