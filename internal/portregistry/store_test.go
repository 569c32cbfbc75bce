package portregistry

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"captionkit/internal/config"
	"captionkit/internal/services"
)

type backendCase struct {
	name string
	open func(t *testing.T, dir string) Store
}

func backends() []backendCase {
	return []backendCase{
		{
			name: BackendJSON,
			open: func(t *testing.T, dir string) Store {
				t.Helper()
				path := filepath.Join(dir, "registry.json")
				if _, err := InitFile(context.Background(), path); err != nil {
					t.Fatalf("InitFile: %v", err)
				}
				return NewJSONStore(path, nil)
			},
		},
		{
			name: BackendSQLite,
			open: func(t *testing.T, dir string) Store {
				t.Helper()
				store, err := OpenSQLite(filepath.Join(dir, "registry.db"), nil)
				if err != nil {
					t.Fatalf("OpenSQLite: %v", err)
				}
				return store
			},
		},
	}
}

func reviewRequest(port int, storage string) Request {
	return Request{
		Name:        "review-ui",
		Port:        port,
		StoragePath: storage,
		Meta:        Meta{Kind: "review", ImageRef: "captionkit"},
	}
}

func TestReserveIsIdempotentForSamePair(t *testing.T) {
	for _, backend := range backends() {
		t.Run(backend.name, func(t *testing.T) {
			store := backend.open(t, t.TempDir())
			defer store.Close()
			ctx := context.Background()

			first, err := store.Reserve(ctx, reviewRequest(7860, "/data/a"))
			if err != nil {
				t.Fatalf("first Reserve: %v", err)
			}
			if !first.Granted || first.AlreadyHeld || !first.Tracked {
				t.Fatalf("first result = %+v", first)
			}

			second, err := store.Reserve(ctx, reviewRequest(7860, "/data/a"))
			if err != nil {
				t.Fatalf("second Reserve: %v", err)
			}
			if !second.Granted || !second.AlreadyHeld {
				t.Fatalf("second result = %+v", second)
			}

			entries, err := store.List(ctx)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(entries) != 1 {
				t.Fatalf("expected 1 entry, got %d", len(entries))
			}
			if entries[0].Kind != "review" || entries[0].ImageRef != "captionkit" || entries[0].Created.IsZero() {
				t.Fatalf("unexpected entry %+v", entries[0])
			}
		})
	}
}

func TestReserveConflictNamesHolder(t *testing.T) {
	for _, backend := range backends() {
		t.Run(backend.name, func(t *testing.T) {
			store := backend.open(t, t.TempDir())
			defer store.Close()
			ctx := context.Background()

			if _, err := store.Reserve(ctx, reviewRequest(7860, "/data/a")); err != nil {
				t.Fatalf("Reserve: %v", err)
			}
			_, err := store.Reserve(ctx, reviewRequest(7860, "/data/b"))
			if !errors.Is(err, services.ErrRegistryConflict) {
				t.Fatalf("expected ErrRegistryConflict, got %v", err)
			}
			var conflict *ConflictError
			if !errors.As(err, &conflict) {
				t.Fatalf("expected *ConflictError, got %T", err)
			}
			if conflict.Port != 7860 || conflict.Holder != "review-ui" || conflict.StoragePath != "/data/a" {
				t.Fatalf("unexpected conflict %+v", conflict)
			}

			other := Request{Name: "tensorboard", Port: 7860, StoragePath: "/data/a"}
			if _, err := store.Reserve(ctx, other); !errors.Is(err, services.ErrRegistryConflict) {
				t.Fatalf("different name should conflict, got %v", err)
			}

			entries, err := store.List(ctx)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(entries) != 1 {
				t.Fatalf("conflicts must not add entries, got %d", len(entries))
			}
		})
	}
}

func TestReleaseRemovesOnlyOwnedEntry(t *testing.T) {
	for _, backend := range backends() {
		t.Run(backend.name, func(t *testing.T) {
			store := backend.open(t, t.TempDir())
			defer store.Close()
			ctx := context.Background()

			for _, req := range []Request{reviewRequest(7860, "/data/a"), reviewRequest(7861, "/data/b")} {
				if _, err := store.Reserve(ctx, req); err != nil {
					t.Fatalf("Reserve: %v", err)
				}
			}

			removed, err := store.Release(ctx, "review-ui", "/data/b", 7860)
			if err != nil || removed {
				t.Fatalf("non-owner release removed=%v err=%v", removed, err)
			}
			removed, err = store.Release(ctx, "review-ui", "/data/a", 7860)
			if err != nil || !removed {
				t.Fatalf("owner release removed=%v err=%v", removed, err)
			}

			entries, err := store.List(ctx)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(entries) != 1 || entries[0].Port != 7861 {
				t.Fatalf("unexpected entries %+v", entries)
			}

			if _, err := store.Reserve(ctx, reviewRequest(7860, "/data/c")); err != nil {
				t.Fatalf("released port should be free: %v", err)
			}
		})
	}
}

func TestReserveConcurrentSingleWinner(t *testing.T) {
	for _, backend := range backends() {
		t.Run(backend.name, func(t *testing.T) {
			dir := t.TempDir()
			seed := backend.open(t, dir)
			defer seed.Close()

			const workers = 8
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				granted   int
				conflicts int
				failures  []error
			)
			stores := make([]Store, workers)
			for i := range stores {
				stores[i] = backend.open(t, dir)
				defer stores[i].Close()
			}
			for i, store := range stores {
				wg.Add(1)
				go func(i int, store Store) {
					defer wg.Done()
					_, err := store.Reserve(context.Background(), reviewRequest(9000, filepath.Join("/data", string(rune('a'+i)))))
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						granted++
					case errors.Is(err, services.ErrRegistryConflict):
						conflicts++
					default:
						failures = append(failures, err)
					}
				}(i, store)
			}
			wg.Wait()

			if len(failures) > 0 {
				t.Fatalf("unexpected failures: %v", failures)
			}
			if granted != 1 || conflicts != workers-1 {
				t.Fatalf("granted=%d conflicts=%d", granted, conflicts)
			}
			entries, err := seed.List(context.Background())
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(entries) != 1 {
				t.Fatalf("expected a single entry, got %d", len(entries))
			}
		})
	}
}

func TestJSONStoreMissingFileIsLenient(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.json")
	store := NewJSONStore(path, nil)
	ctx := context.Background()

	if store.Tracking() {
		t.Fatal("store should not track without a registry file")
	}
	for i := 0; i < 2; i++ {
		result, err := store.Reserve(ctx, reviewRequest(7860, "/data/"+string(rune('a'+i))))
		if err != nil {
			t.Fatalf("Reserve: %v", err)
		}
		if !result.Granted || result.Tracked {
			t.Fatalf("unexpected result %+v", result)
		}
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("registry file should not be created, stat err = %v", err)
	}
	entries, err := store.List(ctx)
	if err != nil || len(entries) != 0 {
		t.Fatalf("List entries=%v err=%v", entries, err)
	}
	removed, err := store.Release(ctx, "review-ui", "/data/a", 7860)
	if err != nil || removed {
		t.Fatalf("Release removed=%v err=%v", removed, err)
	}
}

func TestJSONStoreFileFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.json")
	if created, err := InitFile(context.Background(), path); err != nil || !created {
		t.Fatalf("InitFile created=%v err=%v", created, err)
	}
	if created, err := InitFile(context.Background(), path); err != nil || created {
		t.Fatalf("second InitFile created=%v err=%v", created, err)
	}

	store := NewJSONStore(path, nil)
	store.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 800, time.FixedZone("x", 3600)) }
	req := Request{Name: "review-ui", Port: 7860, StoragePath: "/data/a", Meta: Meta{Kind: "review", GPU: true}}
	if _, err := store.Reserve(context.Background(), req); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("registry is not a JSON array: %v", err)
	}
	if len(raw) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(raw))
	}
	for _, key := range []string{"name", "port", "kind", "image_ref", "gpu", "cache_flag", "storage_path", "created"} {
		if _, ok := raw[0][key]; !ok {
			t.Fatalf("entry missing key %q: %s", key, data)
		}
	}
	if raw[0]["created"] != "2026-03-04T04:06:07Z" {
		t.Fatalf("created = %v", raw[0]["created"])
	}
	if _, err := os.Stat(path + ".lock"); err != nil {
		t.Fatalf("expected lock file beside registry: %v", err)
	}
}

func TestJSONStorePreservesForeignEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.json")
	foreign := `[{"name":"jupyter","port":8888,"kind":"notebook","image_ref":"img","gpu":false,"cache_flag":true,"storage_path":"/work","created":"2025-01-02T03:04:05.123456"},
{"name":"legacy","port":8889,"kind":"","image_ref":"","gpu":false,"cache_flag":false,"storage_path":"","created":"yesterday"}]`
	if err := os.WriteFile(path, []byte(foreign), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewJSONStore(path, nil)
	if _, err := store.Reserve(context.Background(), reviewRequest(7860, "/data/a")); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	entries, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 || entries[0].Name != "jupyter" || entries[2].Name != "review-ui" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if entries[0].Created.Year() != 2025 || !entries[0].CacheFlag {
		t.Fatalf("foreign entry not decoded: %+v", entries[0])
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"created": "yesterday"`) {
		t.Fatalf("unparseable timestamp lost on rewrite:\n%s", data)
	}
}

func TestReserveRejectsInvalidRequest(t *testing.T) {
	store := NewJSONStore(filepath.Join(t.TempDir(), "registry.json"), nil)
	if _, err := store.Reserve(context.Background(), Request{Name: "", Port: 80}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty name, got %v", err)
	}
	if _, err := store.Reserve(context.Background(), Request{Name: "x", Port: 70000}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for bad port, got %v", err)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(config.Registry{Backend: "json", Path: filepath.Join(dir, "r.json")}, nil)
	if err != nil {
		t.Fatalf("Open json: %v", err)
	}
	if _, ok := store.(*JSONStore); !ok {
		t.Fatalf("expected *JSONStore, got %T", store)
	}

	store, err = Open(config.Registry{Backend: "SQLite", Path: filepath.Join(dir, "r.db")}, nil)
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*SQLiteStore); !ok {
		t.Fatalf("expected *SQLiteStore, got %T", store)
	}

	if _, err := Open(config.Registry{Backend: "etcd", Path: "x"}, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestTimestampString(t *testing.T) {
	var parsed Timestamp
	if err := json.Unmarshal([]byte(`"2026-03-04T04:06:07Z"`), &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := parsed.String(); got != "2026-03-04T04:06:07Z" {
		t.Fatalf("String() = %q", got)
	}

	var raw Timestamp
	if err := json.Unmarshal([]byte(`"yesterday"`), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := raw.String(); got != "yesterday" {
		t.Fatalf("String() = %q, want verbatim text", got)
	}
}
