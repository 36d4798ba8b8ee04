package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gestaozabele/laudoia/internal/storage"
)

type stubProvider struct {
	mu          sync.Mutex
	uploads     map[string][]byte
	paths       []string
	mimeTypes   []string
	uploadErr   error
	generateErr error
	report      func(data []byte) string
	block       bool
}

func newStubProvider() *stubProvider {
	return &stubProvider{uploads: make(map[string][]byte)}
}

func (s *stubProvider) Upload(ctx context.Context, path, mimeType string) (Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Asset{}, fmt.Errorf("arquivo temporário ausente durante upload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, path)
	s.mimeTypes = append(s.mimeTypes, mimeType)
	if s.uploadErr != nil {
		return Asset{}, s.uploadErr
	}
	name := fmt.Sprintf("files/%d", len(s.paths))
	s.uploads[name] = data
	return Asset{Name: name, URI: "https://provider.test/" + name, MIMEType: mimeType}, nil
}

func (s *stubProvider) Generate(ctx context.Context, asset Asset) (string, error) {
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generateErr != nil {
		return "", s.generateErr
	}
	data := s.uploads[asset.Name]
	if s.report != nil {
		return s.report(data), nil
	}
	return "laudo:" + string(data), nil
}

func (s *stubProvider) uploadedPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

func newTestRelay(t *testing.T, provider Provider, timeout time.Duration) (*Relay, *storage.TempStore) {
	t.Helper()
	store, err := storage.NewTempStore(t.TempDir())
	if err != nil {
		t.Fatalf("temp store: %v", err)
	}
	relay, err := NewRelay(provider, store, Options{UpstreamTimeout: timeout, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	return relay, store
}

func assertNoTempFiles(t *testing.T, store *storage.TempStore) {
	t.Helper()
	entries, err := os.ReadDir(store.Dir())
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no temp files, found %d", len(entries))
	}
}

func TestAnalyzeReturnsReportVerbatim(t *testing.T) {
	provider := newStubProvider()
	want := "  **Findings**\n\tSuggestive of ... não conclusivo ✓\n\n"
	provider.report = func([]byte) string { return want }
	relay, store := newTestRelay(t, provider, 0)

	report, err := relay.Analyze(context.Background(), []byte{0xff, 0xd8, 0xff}, "image/jpeg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.DiagnosticReport != want {
		t.Fatalf("report altered: %q", report.DiagnosticReport)
	}
	if len(provider.uploadedPaths()) != 1 {
		t.Fatalf("expected one upload")
	}
	assertNoTempFiles(t, store)
}

func TestAnalyzeRemovesTempFileOnUpstreamFailure(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*stubProvider)
	}{
		{"upload", func(p *stubProvider) { p.uploadErr = errors.New("quota esgotada") }},
		{"geração", func(p *stubProvider) { p.generateErr = errors.New("api key inválida") }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			provider := newStubProvider()
			tc.mutate(provider)
			relay, store := newTestRelay(t, provider, 0)

			_, err := relay.Analyze(context.Background(), []byte("img"), "image/png")
			if !errors.Is(err, ErrUpstream) {
				t.Fatalf("expected ErrUpstream got %v", err)
			}
			if errors.Is(err, ErrTempStorage) {
				t.Fatalf("upstream failure must not be classified as storage failure")
			}
			if len(provider.uploadedPaths()) != 1 {
				t.Fatalf("expected upload attempt")
			}
			assertNoTempFiles(t, store)
		})
	}
}

func TestAnalyzeEmptyImageStillCallsProvider(t *testing.T) {
	provider := newStubProvider()
	relay, store := newTestRelay(t, provider, 0)

	report, err := relay.Analyze(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.DiagnosticReport != "laudo:" {
		t.Fatalf("unexpected report %q", report.DiagnosticReport)
	}
	if got := provider.mimeTypes[0]; got != "image/jpeg" {
		t.Fatalf("expected jpeg fallback got %s", got)
	}
	assertNoTempFiles(t, store)
}

func TestAnalyzeStorageFailure(t *testing.T) {
	provider := newStubProvider()
	relay, store := newTestRelay(t, provider, 0)
	if err := os.RemoveAll(store.Dir()); err != nil {
		t.Fatalf("remove dir: %v", err)
	}

	_, err := relay.Analyze(context.Background(), []byte("img"), "image/jpeg")
	if !errors.Is(err, ErrTempStorage) {
		t.Fatalf("expected ErrTempStorage got %v", err)
	}
	if len(provider.uploadedPaths()) != 0 {
		t.Fatalf("provider must not be called when storage fails")
	}
}

func TestAnalyzeUpstreamTimeout(t *testing.T) {
	provider := newStubProvider()
	provider.block = true
	relay, store := newTestRelay(t, provider, 20*time.Millisecond)

	_, err := relay.Analyze(context.Background(), []byte("img"), "image/jpeg")
	if !errors.Is(err, ErrUpstream) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected upstream deadline error got %v", err)
	}
	assertNoTempFiles(t, store)
}

func TestAnalyzeConcurrentRequestsAreIsolated(t *testing.T) {
	provider := newStubProvider()
	relay, store := newTestRelay(t, provider, 0)

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := fmt.Sprintf("imagem-%02d", i)
			report, err := relay.Analyze(context.Background(), []byte(payload), "image/png")
			if err != nil {
				errs <- err
				return
			}
			if report.DiagnosticReport != "laudo:"+payload {
				errs <- fmt.Errorf("request %d got %q", i, report.DiagnosticReport)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	seen := make(map[string]struct{})
	for _, p := range provider.uploadedPaths() {
		if _, dup := seen[p]; dup {
			t.Fatalf("temp path reused: %s", p)
		}
		seen[p] = struct{}{}
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct temp files got %d", n, len(seen))
	}
	assertNoTempFiles(t, store)
}

func TestNewRelayValidatesDependencies(t *testing.T) {
	store, err := storage.NewTempStore(t.TempDir())
	if err != nil {
		t.Fatalf("temp store: %v", err)
	}

	tests := []struct {
		name     string
		provider Provider
		store    *storage.TempStore
		timeout  time.Duration
	}{
		{name: "sem provedor", provider: nil, store: store},
		{name: "sem store", provider: newStubProvider(), store: nil},
		{name: "timeout negativo", provider: newStubProvider(), store: store, timeout: -time.Second},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			relay, err := NewRelay(tc.provider, tc.store, Options{UpstreamTimeout: tc.timeout, Logger: zerolog.Nop()})
			if err == nil || relay != nil {
				t.Fatalf("expected error, got relay %v", relay)
			}
		})
	}
}

func TestAnalyzeLogsReportSizeInBytes(t *testing.T) {
	provider := newStubProvider()
	report := "laudo: não conclusivo ✓"
	provider.report = func([]byte) string { return report }
	store, err := storage.NewTempStore(t.TempDir())
	if err != nil {
		t.Fatalf("temp store: %v", err)
	}
	var buf bytes.Buffer
	relay, err := NewRelay(provider, store, Options{Logger: zerolog.New(&buf)})
	if err != nil {
		t.Fatalf("relay: %v", err)
	}

	if _, err := relay.Analyze(context.Background(), []byte("img"), "image/png"); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log: %v (%s)", err, buf.String())
	}
	if got, ok := line["report_bytes"].(float64); !ok || int(got) != len(report) {
		t.Fatalf("expected report_bytes=%d got %v", len(report), line["report_bytes"])
	}
}

func TestResolveMIMEType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	tests := []struct {
		name     string
		declared string
		data     []byte
		want     string
	}{
		{"declarado", "image/webp", nil, "image/webp"},
		{"com parâmetros", "image/png; q=1", nil, "image/png"},
		{"octet-stream detecta", "application/octet-stream", png, "image/png"},
		{"vazio detecta", "", png, "image/png"},
		{"vazio sem dados", "", nil, "image/jpeg"},
		{"não imagem", "", []byte("texto simples"), "image/jpeg"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveMIMEType(tc.declared, tc.data); got != tc.want {
				t.Fatalf("got %s want %s", got, tc.want)
			}
		})
	}
}
