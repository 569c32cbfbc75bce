package main

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"captionkit/internal/services"
	"captionkit/internal/testsupport"
)

func TestPortsLifecycle(t *testing.T) {
	env := setupCLITestEnv(t)
	storageA := filepath.Join(env.baseDir, "a")
	storageB := filepath.Join(env.baseDir, "b")

	out, _, err := runCLI(t, []string{"ports", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("ports list: %v", err)
	}
	requireContains(t, out, "not initialized")

	out, _, err = runCLI(t, []string{"ports", "reserve", "svc", "7000", "--storage", storageA}, env.configPath)
	if err != nil {
		t.Fatalf("reserve before init: %v", err)
	}
	requireContains(t, out, "not tracked")

	out, _, err = runCLI(t, []string{"ports", "init"}, env.configPath)
	if err != nil {
		t.Fatalf("ports init: %v", err)
	}
	requireContains(t, out, "Created registry")

	out, _, err = runCLI(t, []string{"ports", "reserve", "svc", "7000", "--storage", storageA, "--kind", "review", "--gpu"}, env.configPath)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	requireContains(t, out, "Reserved port 7000 for svc")

	out, _, err = runCLI(t, []string{"ports", "reserve", "svc", "7000", "--storage", storageA}, env.configPath)
	if err != nil {
		t.Fatalf("idempotent reserve: %v", err)
	}
	requireContains(t, out, "already reserved by svc")

	_, _, err = runCLI(t, []string{"ports", "reserve", "other", "7000", "--storage", storageB}, env.configPath)
	if !errors.Is(err, services.ErrRegistryConflict) {
		t.Fatalf("expected ErrRegistryConflict, got %v", err)
	}

	out, _, err = runCLI(t, []string{"ports", "list", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("ports list --json: %v", err)
	}
	var entries []portEntryOutput
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(entries) != 1 || entries[0].Name != "svc" || entries[0].Port != 7000 || !entries[0].GPU || entries[0].Kind != "review" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if entries[0].StoragePath != storageA {
		t.Fatalf("storage path = %q, want %q", entries[0].StoragePath, storageA)
	}

	out, _, err = runCLI(t, []string{"ports", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("ports list: %v", err)
	}
	requireContains(t, out, "7000")
	requireContains(t, out, "svc")

	out, _, err = runCLI(t, []string{"ports", "release", "svc", "7000", "--storage", storageA}, env.configPath)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	requireContains(t, out, "Released port 7000")

	out, _, err = runCLI(t, []string{"ports", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("ports list: %v", err)
	}
	requireContains(t, out, "No reservations")
}

func TestPortsSQLiteBackend(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithSQLiteRegistry())
	storage := filepath.Join(env.baseDir, "a")

	out, _, err := runCLI(t, []string{"ports", "init"}, env.configPath)
	if err != nil {
		t.Fatalf("ports init: %v", err)
	}
	requireContains(t, out, "(sqlite)")

	out, _, err = runCLI(t, []string{"ports", "reserve", "svc", "7001", "--storage", storage}, env.configPath)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	requireContains(t, out, "Reserved port 7001")

	out, _, err = runCLI(t, []string{"ports", "release", "svc", "7002", "--storage", storage}, env.configPath)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	requireContains(t, out, "No reservation for svc on port 7002")
}

func TestParsePort(t *testing.T) {
	tests := []struct {
		value   string
		want    int
		wantErr bool
	}{
		{value: "7860", want: 7860},
		{value: " 1 ", want: 1},
		{value: "0", wantErr: true},
		{value: "65536", wantErr: true},
		{value: "http", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := parsePort(tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parsePort(%q) err = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("parsePort(%q) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}
