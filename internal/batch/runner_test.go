package batch_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"captionkit/internal/batch"
	"captionkit/internal/dataset"
	"captionkit/internal/services"
	"captionkit/internal/services/captioner"
	"captionkit/internal/testsupport"
)

func newRunner(t *testing.T, server *testsupport.CaptionServer, concurrency int, opts ...batch.Option) *batch.Runner {
	t.Helper()
	cfg := testsupport.NewConfig(t,
		testsupport.WithCaptionerURL(server.URL),
		testsupport.WithConcurrency(concurrency))
	client := captioner.NewClient(captioner.Config{BaseURL: cfg.Captioner.BaseURL, Task: cfg.Captioner.Task})
	opts = append([]batch.Option{batch.WithRunIDGenerator(func() string { return "run-1" })}, opts...)
	return batch.NewRunner(cfg, client, nil, opts...)
}

func TestRunWritesNormalizedOutputs(t *testing.T) {
	server := testsupport.NewCaptionServer(t, map[string]string{
		"img_1.jpg":  "A man wearing a red jacket, standing near a wall, smiling",
		"img_2.jpg":  "A man wearing a red jacket, standing near a wall, smiling",
		"img_10.jpg": "She is holding her umbrella. Rainy street and puddles",
	})
	dir := t.TempDir()
	testsupport.WriteImages(t, dir, "img_10.jpg", "img_2.jpg", "img_1.jpg", "readme.txt")

	var progress []int
	runner := newRunner(t, server, 1, batch.WithProgress(func(done, total int, image string) {
		if total != 3 {
			t.Errorf("total = %d", total)
		}
		progress = append(progress, done)
	}))
	summary, err := runner.Run(context.Background(), batch.Request{
		ImageDir:    dir,
		Concept:     "mikey",
		Tagify:      true,
		Instruction: "ignore background",
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if summary.RunID != "run-1" || summary.OutputDir != dir {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if got := server.Uploads(); strings.Join(got, ",") != "img_1.jpg,img_2.jpg,img_10.jpg" {
		t.Fatalf("upload order = %v", got)
	}
	if len(progress) != 3 || progress[2] != 3 {
		t.Fatalf("progress = %v", progress)
	}

	want := []string{
		"mikey wearing a red jacket, smiling",
		"mikey wearing a red jacket, smiling",
		"mikey is holding mikey's umbrella, rainy street, puddles",
	}
	for i, record := range summary.Records {
		if record.FinalCaption != want[i] {
			t.Fatalf("record %d final = %q, want %q", i, record.FinalCaption, want[i])
		}
	}

	if len(summary.Issues) == 0 || summary.IssuesPath == "" {
		t.Fatalf("expected issues for short and duplicate captions, got %+v", summary.Issues)
	}
	if !hasIssue(summary.Issues, "near-duplicate of "+filepath.Join(dir, "img_2.jpg")+" (similarity 1.00)") {
		t.Fatalf("missing duplicate issue: %+v", summary.Issues)
	}

	loaded, err := dataset.LoadRecords(filepath.Join(dir, dataset.CaptionsJSONName))
	if err != nil {
		t.Fatalf("LoadRecords: %v", err)
	}
	if len(loaded) != 3 || loaded[0].Image != filepath.Join(dir, "img_1.jpg") {
		t.Fatalf("unexpected persisted records %+v", loaded)
	}
	if _, err := os.Stat(filepath.Join(dir, dataset.CaptionsCSVName)); err != nil {
		t.Fatalf("captions.csv missing: %v", err)
	}
}

func TestRunConcurrentPreservesOrder(t *testing.T) {
	captions := map[string]string{}
	var names []string
	for i := 1; i <= 12; i++ {
		name := "frame_" + string(rune('a'+i)) + "_" + strconv.Itoa(i) + ".png"
		names = append(names, name)
		captions[name] = "caption " + strconv.Itoa(i) + ", a, b, c"
	}
	server := testsupport.NewCaptionServer(t, captions)
	dir := t.TempDir()
	testsupport.WriteImages(t, dir, names...)

	var (
		mu   sync.Mutex
		seen []int
	)
	runner := newRunner(t, server, 4, batch.WithProgress(func(done, _ int, _ string) {
		mu.Lock()
		seen = append(seen, done)
		mu.Unlock()
	}))
	summary, err := runner.Run(context.Background(), batch.Request{ImageDir: dir, Concept: "zoe"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	for i, record := range summary.Records {
		if record.RawCaption != "caption "+strconv.Itoa(i+1)+", a, b, c" {
			t.Fatalf("record %d raw = %q", i, record.RawCaption)
		}
	}
	if len(seen) != 12 {
		t.Fatalf("progress calls = %d", len(seen))
	}
	for i, done := range seen {
		if done != i+1 {
			t.Fatalf("progress counts not monotonic: %v", seen)
		}
	}
}

func TestRunMissingDirectoryFailsBeforeNetwork(t *testing.T) {
	server := testsupport.NewCaptionServer(t, nil)
	runner := newRunner(t, server, 1)
	_, err := runner.Run(context.Background(), batch.Request{ImageDir: filepath.Join(t.TempDir(), "nope"), Concept: "mikey"})
	if !errors.Is(err, services.ErrInputNotFound) {
		t.Fatalf("expected ErrInputNotFound, got %v", err)
	}
	if len(server.Uploads()) != 0 {
		t.Fatal("no caption requests expected")
	}
}

func TestRunRefusesToOverwrite(t *testing.T) {
	server := testsupport.NewCaptionServer(t, map[string]string{"1.png": "x"})
	dir := t.TempDir()
	testsupport.WriteImages(t, dir, "1.png")
	testsupport.WriteFile(t, filepath.Join(dir, dataset.CaptionsJSONName), 2)

	runner := newRunner(t, server, 1)
	_, err := runner.Run(context.Background(), batch.Request{ImageDir: dir, Concept: "mikey"})
	if !errors.Is(err, services.ErrOutputExists) {
		t.Fatalf("expected ErrOutputExists, got %v", err)
	}

	if _, err := runner.Run(context.Background(), batch.Request{ImageDir: dir, Concept: "mikey", Overwrite: true}); err != nil {
		t.Fatalf("overwrite run: %v", err)
	}
}

func TestRunNoImages(t *testing.T) {
	server := testsupport.NewCaptionServer(t, nil)
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "notes.txt"), 4)

	_, err := newRunner(t, server, 1).Run(context.Background(), batch.Request{ImageDir: dir, Concept: "mikey"})
	if !errors.Is(err, services.ErrNoImages) {
		t.Fatalf("expected ErrNoImages, got %v", err)
	}
}

func TestRunServiceUnavailable(t *testing.T) {
	server := testsupport.NewCaptionServer(t, map[string]string{"1.png": "x"})
	server.SetHealth("loading")
	dir := t.TempDir()
	testsupport.WriteImages(t, dir, "1.png")

	_, err := newRunner(t, server, 1).Run(context.Background(), batch.Request{ImageDir: dir, Concept: "mikey"})
	if !errors.Is(err, services.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	if len(server.Uploads()) != 0 {
		t.Fatal("captioning must not start before the service is ready")
	}
}

func TestRunAbortsOnFirstCaptionFailure(t *testing.T) {
	for _, concurrency := range []int{1, 3} {
		t.Run("concurrency "+strconv.Itoa(concurrency), func(t *testing.T) {
			server := testsupport.NewCaptionServer(t, map[string]string{"1.png": "a", "2.png": "b", "3.png": "c"})
			server.FailOn("2.png", http.StatusInternalServerError)
			dir := t.TempDir()
			testsupport.WriteImages(t, dir, "1.png", "2.png", "3.png")

			_, err := newRunner(t, server, concurrency).Run(context.Background(), batch.Request{ImageDir: dir, Concept: "mikey"})
			if !errors.Is(err, services.ErrUpstream) {
				t.Fatalf("expected ErrUpstream, got %v", err)
			}
			if _, statErr := os.Stat(filepath.Join(dir, dataset.CaptionsJSONName)); !os.IsNotExist(statErr) {
				t.Fatalf("no outputs expected after failure, stat err = %v", statErr)
			}
			if concurrency == 1 {
				if got := server.Uploads(); strings.Join(got, ",") != "1.png,2.png" {
					t.Fatalf("sequential run continued after failure: %v", got)
				}
			}
		})
	}
}

func TestRunRequiresConcept(t *testing.T) {
	server := testsupport.NewCaptionServer(t, nil)
	_, err := newRunner(t, server, 1).Run(context.Background(), batch.Request{ImageDir: t.TempDir(), Concept: "  "})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

type stubCaptioner struct {
	ready error
	calls int
}

func (s *stubCaptioner) Caption(ctx context.Context, imagePath string) (string, error) {
	s.calls++
	return "", nil
}

func (s *stubCaptioner) WaitReady(ctx context.Context, attempts int, delay time.Duration) (captioner.HealthStatus, error) {
	return captioner.HealthStatus{Status: "ok"}, s.ready
}

func TestRunEmptyCaptionsDegradeToConcept(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteImages(t, dir, "1.png", "2.png")
	cfg := testsupport.NewConfig(t)
	stub := &stubCaptioner{}

	summary, err := batch.NewRunner(cfg, stub, nil).Run(context.Background(), batch.Request{ImageDir: dir, Concept: "mikey"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if stub.calls != 2 {
		t.Fatalf("caption calls = %d", stub.calls)
	}
	for _, record := range summary.Records {
		if record.FinalCaption != "mikey" {
			t.Fatalf("final caption = %q", record.FinalCaption)
		}
	}
	if summary.RunID == "" {
		t.Fatal("expected generated run id")
	}
}

func hasIssue(issues []dataset.Issue, text string) bool {
	for _, issue := range issues {
		if issue.Issue == text {
			return true
		}
	}
	return false
}
