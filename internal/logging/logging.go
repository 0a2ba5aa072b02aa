// Package logging tees the standard logger into a log file and reads it back
// for the logs command.
package logging

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	mu      sync.Mutex
	logFile *os.File
)

// Init sends log output to stderr and appends it to the file at path.
// An empty path leaves the logger untouched.
func Init(path string) {
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Printf("WARNING: cannot create log directory: %v", err)
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		log.Printf("WARNING: cannot open log file %s: %v", path, err)
		return
	}

	mu.Lock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	mu.Unlock()
}

// Close detaches and closes the log file.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	log.SetOutput(os.Stderr)
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// TailOptions selects lines for ReadTail.
type TailOptions struct {
	// Lines is the number of lines to return. Zero returns all lines.
	Lines int
	// Component keeps only lines tagged "[component]".
	Component string
}

// ReadTail returns the last lines of the log file at path, joined by "\n".
// A missing file yields an empty result.
func ReadTail(path string, opts TailOptions) (string, error) {
	mu.Lock()
	defer mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	tag := ""
	if opts.Component != "" {
		tag = "[" + opts.Component + "]"
	}

	// ring keeps at most opts.Lines lines; next is the oldest slot once full
	var ring []string
	next := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if tag != "" && !strings.Contains(line, tag) {
			continue
		}
		if opts.Lines <= 0 || len(ring) < opts.Lines {
			ring = append(ring, line)
			continue
		}
		ring[next] = line
		next = (next + 1) % opts.Lines
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("scan log file: %w", err)
	}

	ordered := make([]string, 0, len(ring))
	ordered = append(ordered, ring[next:]...)
	ordered = append(ordered, ring[:next]...)
	return strings.Join(ordered, "\n"), nil
}

// Clear truncates the log file at path.
func Clear(path string) error {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil && logFile.Name() == path {
		if err := logFile.Truncate(0); err != nil {
			return fmt.Errorf("truncate log file: %w", err)
		}
		return nil
	}
	if err := os.Truncate(path, 0); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("truncate log file: %w", err)
	}
	return nil
}
