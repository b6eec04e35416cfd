package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestScanAndFlushWaitsForStableSize(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "talk.wav")
	os.WriteFile(audio, []byte("RIFF"), 0o644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)

	var handled []string
	w := New(dir, func(_ context.Context, path string) error {
		handled = append(handled, path)
		return nil
	}, WithSettle(2*time.Second))
	c := &clock{t: time.Unix(1000, 0)}
	w.now = c.now

	ctx := context.Background()
	w.scan()
	w.flush(ctx)
	if len(handled) != 0 {
		t.Fatal("file handled before it settled")
	}

	c.t = c.t.Add(time.Second)
	os.WriteFile(audio, []byte("RIFF more data"), 0o644)
	w.flush(ctx)
	c.t = c.t.Add(1500 * time.Millisecond)
	w.flush(ctx)
	if len(handled) != 0 {
		t.Fatal("growing file should restart the settle timer")
	}

	c.t = c.t.Add(time.Second)
	w.flush(ctx)
	if len(handled) != 1 || handled[0] != audio {
		t.Fatalf("handled = %v", handled)
	}

	c.t = c.t.Add(time.Minute)
	w.scan()
	w.flush(ctx)
	if len(handled) != 1 {
		t.Errorf("file handled twice: %v", handled)
	}
}

func TestSkip(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.mp3"), []byte("ID3"), 0o644)

	called := false
	w := New(dir, func(context.Context, string) error {
		called = true
		return nil
	}, WithSettle(0), WithSkip(func(string) bool { return true }))
	w.scan()
	w.flush(context.Background())
	if called {
		t.Error("skipped file was handled")
	}
}

func TestRunPicksUpNewFile(t *testing.T) {
	dir := t.TempDir()

	got := make(chan string, 1)
	w := New(dir, func(_ context.Context, path string) error {
		select {
		case got <- path:
		default:
		}
		return nil
	}, WithSettle(50*time.Millisecond), WithPollInterval(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	path := filepath.Join(dir, "late.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-got:
		if p != path {
			t.Errorf("handled %q, want %q", p, path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("file was not picked up")
	}

	cancel()
	if err := <-errc; err != nil {
		t.Errorf("Run: %v", err)
	}
}
