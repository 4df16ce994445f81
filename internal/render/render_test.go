package render

import (
	"strings"
	"sync"
	"testing"
)

func plain() Options {
	return DefaultOptions().WithStyle(StyleNoTTY)
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if opts.Width != 80 {
		t.Errorf("expected Width=80, got %d", opts.Width)
	}
	if opts.Style != StyleAuto {
		t.Errorf("expected Style=%q, got %q", StyleAuto, opts.Style)
	}
	if !opts.PreserveNewLines {
		t.Error("expected PreserveNewLines=true")
	}
}

func TestMarkdown_RendersText(t *testing.T) {
	out, err := Markdown("Hello **world**\n\n- one\n- two", plain())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Hello", "world", "one", "two"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.HasPrefix(out, "\n") || strings.HasSuffix(out, "\n") {
		t.Errorf("expected surrounding newlines to be trimmed, got %q", out)
	}
}

func TestMarkdown_WrapsToWidth(t *testing.T) {
	long := strings.Repeat("word ", 40)

	out, err := Markdown(long, plain().WithWidth(30))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Count(out, "\n") < 3 {
		t.Errorf("expected wrapped output, got %q", out)
	}
}

func TestMarkdown_MissingStyleFile(t *testing.T) {
	_, err := Markdown("hi", DefaultOptions().WithStyle("/nonexistent/style.json"))
	if err == nil {
		t.Fatal("expected error for missing style file")
	}
}

func TestMarkdownOrPlain_FallsBack(t *testing.T) {
	got := MarkdownOrPlain("**raw**", DefaultOptions().WithStyle("/nonexistent/style.json"))
	if got != "**raw**" {
		t.Errorf("expected raw content, got %q", got)
	}
}

func TestMarkdown_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := Markdown("# Title\n\nbody", plain()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent render failed: %v", err)
	}
}

func poolCount() int {
	globalPool.mu.RLock()
	defer globalPool.mu.RUnlock()
	return len(globalPool.pools)
}

func TestRendererPool_OnePoolPerOptionSet(t *testing.T) {
	before := poolCount()

	opts := plain().WithWidth(77)
	MarkdownOrPlain("a", opts)
	MarkdownOrPlain("b", opts)

	if got := poolCount(); got != before+1 {
		t.Errorf("expected %d pools, got %d", before+1, got)
	}
}
