package ssh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"
)

// memSink is a minimal scp sink that records received files in memory.
type memSink struct {
	files   map[string]string
	dirs    []string
	rejectC string
}

func (m *memSink) serve(r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	ack := func() error { _, err := w.Write([]byte{0}); return err }
	if err := ack(); err != nil {
		return err
	}
	var stack []string
	for {
		line, err := br.ReadString('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSuffix(line, "\n")
		switch line[0] {
		case 'D':
			var mode, size int
			var name string
			if _, err := fmt.Sscanf(line, "D%o %d %s", &mode, &size, &name); err != nil {
				return err
			}
			stack = append(stack, name)
			m.dirs = append(m.dirs, path.Join(stack...))
			if err := ack(); err != nil {
				return err
			}
		case 'E':
			stack = stack[:len(stack)-1]
			if err := ack(); err != nil {
				return err
			}
		case 'C':
			var mode int
			var size int64
			var name string
			if _, err := fmt.Sscanf(line, "C%o %d %s", &mode, &size, &name); err != nil {
				return err
			}
			if name == m.rejectC {
				_, err := w.Write([]byte("\x02permission denied\n"))
				return err
			}
			if err := ack(); err != nil {
				return err
			}
			buf := make([]byte, size)
			if _, err := io.ReadFull(br, buf); err != nil {
				return err
			}
			if b, err := br.ReadByte(); err != nil || b != 0 {
				return fmt.Errorf("missing file terminator")
			}
			m.files[path.Join(append(append([]string{}, stack...), name)...)] = string(buf)
			if err := ack(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unexpected record %q", line)
		}
	}
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func transfer(t *testing.T, dir string, sink *memSink) (UploadStats, error) {
	t.Helper()
	toSinkR, toSinkW := io.Pipe()
	fromSinkR, fromSinkW := io.Pipe()

	sinkErr := make(chan error, 1)
	go func() {
		err := sink.serve(toSinkR, fromSinkW)
		fromSinkW.Close()
		io.Copy(io.Discard, toSinkR)
		sinkErr <- err
	}()

	stats, err := NewSCPWriter(toSinkW, fromSinkR).SendDirContents(dir)
	toSinkW.Close()
	if serr := <-sinkErr; serr != nil {
		t.Fatalf("sink: %v", serr)
	}
	return stats, err
}

func TestSendDirContentsTransfersTree(t *testing.T) {
	dir := t.TempDir()
	want := map[string]string{
		"index.html":            "<html></html>",
		"main.dart.js":          strings.Repeat("x", 70000),
		"assets/fonts/a.ttf":    "font",
		"assets/AssetManifest":  "{}",
		"canvaskit/canvas.wasm": "",
	}
	writeTree(t, dir, want)

	sink := &memSink{files: map[string]string{}}
	stats, err := transfer(t, dir, sink)
	if err != nil {
		t.Fatalf("SendDirContents: %v", err)
	}

	if len(sink.files) != len(want) {
		t.Fatalf("got %d files, want %d: %v", len(sink.files), len(want), sink.files)
	}
	for name, content := range want {
		if got, ok := sink.files[name]; !ok || got != content {
			t.Errorf("file %s: got %q (present=%v)", name, truncate(got), ok)
		}
	}
	if stats.Files != len(want) {
		t.Errorf("stats.Files = %d, want %d", stats.Files, len(want))
	}
	if stats.Dirs != 3 {
		t.Errorf("stats.Dirs = %d, want 3", stats.Dirs)
	}
	if stats.Bytes != int64(13+70000+4+2) {
		t.Errorf("stats.Bytes = %d", stats.Bytes)
	}
}

func TestSendDirContentsSurfacesSinkError(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"a.txt": "a", "b.txt": "b"})

	sink := &memSink{files: map[string]string{}, rejectC: "b.txt"}
	_, err := transfer(t, dir, sink)
	if err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Fatalf("expected sink error, got %v", err)
	}
	if _, ok := sink.files["a.txt"]; !ok {
		t.Errorf("a.txt should have been transferred before the failure")
	}
}

func TestSendDirContentsRejectsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewSCPWriter(io.Discard, strings.NewReader("\x00")).SendDirContents(file)
	if err == nil {
		t.Fatal("expected error for non-directory source")
	}
}

func TestSCPSinkCommandQuotesPath(t *testing.T) {
	if got := scpSinkCommand("/var/www/app"); got != "scp -r -t /var/www/app" {
		t.Errorf("got %q", got)
	}
	if got := scpSinkCommand("/var/www/my app"); got != "scp -r -t '/var/www/my app'" {
		t.Errorf("got %q", got)
	}
}

func truncate(s string) string {
	if len(s) > 20 {
		return s[:20] + "..."
	}
	return s
}
