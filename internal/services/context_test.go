package services_test

import (
	"context"
	"testing"

	"captionkit/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-123")
	ctx = services.WithStage(ctx, "caption")
	ctx = services.WithImage(ctx, "/data/001.png")

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-123" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "caption" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if image, ok := services.ImageFromContext(ctx); !ok || image != "/data/001.png" {
		t.Fatalf("unexpected image: %v %v", image, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}
