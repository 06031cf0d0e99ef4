package ssh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"static-deploy/pkg/utils"
)

// UploadStats summarizes an scp transfer.
type UploadStats struct {
	Files int   `json:"files"`
	Dirs  int   `json:"dirs"`
	Bytes int64 `json:"bytes"`
}

// SCPWriter speaks the source side of the scp protocol: it sends C/D/E
// records and waits for the sink's acknowledgement after each one.
type SCPWriter struct {
	w     io.Writer
	r     *bufio.Reader
	stats UploadStats
}

func NewSCPWriter(w io.Writer, r io.Reader) *SCPWriter {
	return &SCPWriter{w: w, r: bufio.NewReader(r)}
}

func scpSinkCommand(remoteDir string) string {
	return "scp -r -t " + utils.ShellQuote(remoteDir)
}

// SendDirContents sends every entry under localDir, not localDir itself.
func (s *SCPWriter) SendDirContents(localDir string) (UploadStats, error) {
	info, err := os.Stat(localDir)
	if err != nil {
		return s.stats, fmt.Errorf("stat %s: %w", localDir, err)
	}
	if !info.IsDir() {
		return s.stats, fmt.Errorf("%s is not a directory", localDir)
	}

	// the sink greets with an ack before the first record
	if err := s.readAck(); err != nil {
		return s.stats, err
	}
	if err := s.sendEntries(localDir); err != nil {
		return s.stats, err
	}
	return s.stats, nil
}

func (s *SCPWriter) sendEntries(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())
		info, err := os.Stat(full)
		if err != nil {
			return fmt.Errorf("stat %s: %w", full, err)
		}
		switch {
		case info.IsDir():
			if err := s.sendDir(full, info); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if err := s.sendFile(full, info); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%s is not a regular file or directory", full)
		}
	}
	return nil
}

func (s *SCPWriter) sendDir(path string, info os.FileInfo) error {
	name, err := recordName(info.Name())
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "D%04o 0 %s\n", info.Mode().Perm(), name); err != nil {
		return fmt.Errorf("send directory %s: %w", path, err)
	}
	if err := s.readAck(); err != nil {
		return fmt.Errorf("directory %s: %w", path, err)
	}
	if err := s.sendEntries(path); err != nil {
		return err
	}
	if _, err := io.WriteString(s.w, "E\n"); err != nil {
		return fmt.Errorf("end directory %s: %w", path, err)
	}
	if err := s.readAck(); err != nil {
		return fmt.Errorf("end directory %s: %w", path, err)
	}
	s.stats.Dirs++
	return nil
}

func (s *SCPWriter) sendFile(path string, info os.FileInfo) error {
	name, err := recordName(info.Name())
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(s.w, "C%04o %d %s\n", info.Mode().Perm(), info.Size(), name); err != nil {
		return fmt.Errorf("send file header %s: %w", path, err)
	}
	if err := s.readAck(); err != nil {
		return fmt.Errorf("file %s: %w", path, err)
	}
	n, err := io.CopyN(s.w, f, info.Size())
	if err != nil {
		return fmt.Errorf("send file %s: %w", path, err)
	}
	if _, err := s.w.Write([]byte{0}); err != nil {
		return fmt.Errorf("terminate file %s: %w", path, err)
	}
	if err := s.readAck(); err != nil {
		return fmt.Errorf("file %s: %w", path, err)
	}
	s.stats.Files++
	s.stats.Bytes += n
	return nil
}

// readAck consumes one response byte: 0 ok, 1 warning, 2 fatal. Both
// non-zero codes are followed by a message line and are treated as errors.
func (s *SCPWriter) readAck() error {
	code, err := s.r.ReadByte()
	if err != nil {
		return fmt.Errorf("read scp ack: %w", err)
	}
	if code == 0 {
		return nil
	}
	msg, _ := s.r.ReadString('\n')
	msg = strings.TrimSpace(msg)
	if code == 1 || code == 2 {
		return fmt.Errorf("scp: %s", msg)
	}
	return fmt.Errorf("scp: unexpected response byte %d", code)
}

func recordName(name string) (string, error) {
	if strings.ContainsAny(name, "\n\r/") {
		return "", fmt.Errorf("file name %q cannot be sent over scp", name)
	}
	return name, nil
}
