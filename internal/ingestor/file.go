package ingestor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/GabrielNunesIT/azmon-shipper/internal/config"
	"github.com/GabrielNunesIT/azmon-shipper/internal/model"
)

// FileIngestor tails files matching the configured glob patterns. By default
// existing content is skipped and only lines appended after startup are
// shipped; read_from_start ships the existing content too. Rotation is
// handled for both styles: truncate-in-place restarts at offset zero, and
// rename-plus-recreate picks the new file up from its beginning.
type FileIngestor struct {
	cfg  config.FileIngestorConfig
	name string
}

// NewFileIngestor creates a new file tailing ingestor.
func NewFileIngestor(cfg config.FileIngestorConfig) *FileIngestor {
	return &FileIngestor{
		cfg:  cfg,
		name: "file",
	}
}

// Name returns the ingestor identifier.
func (f *FileIngestor) Name() string {
	return f.name
}

// Start begins watching and tailing files, sending events to the output channel.
func (f *FileIngestor) Start(ctx context.Context, out chan<- *model.LogEvent) error {
	defer close(out)

	files, err := f.expandPatterns()
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	// Byte offset of the next unread line per file. The watch loop is the
	// only goroutine touching it.
	offsets := make(map[string]int64)

	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		start := info.Size()
		if f.cfg.ReadFromStart {
			start = 0
		}
		offsets[file] = start
		if err := watcher.Add(file); err != nil {
			return fmt.Errorf("watching file %q: %w", file, err)
		}
	}

	if f.cfg.ReadFromStart {
		for file, pos := range offsets {
			newPos, err := f.readNewLines(ctx, file, pos, out)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
			offsets[file] = newPos
		}
	}

	// Watch the parent directories too so rotated-in files are noticed.
	dirs := make(map[string]struct{})
	for _, file := range files {
		dirs[filepath.Dir(file)] = struct{}{}
	}
	for dir := range dirs {
		_ = watcher.Add(dir)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if err := f.handleEvent(ctx, event, offsets, watcher, out); err != nil {
				return err
			}

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}

// handleEvent advances the tail state for one filesystem event.
func (f *FileIngestor) handleEvent(ctx context.Context, event fsnotify.Event, offsets map[string]int64, watcher *fsnotify.Watcher, out chan<- *model.LogEvent) error {
	switch {
	case event.Op&fsnotify.Write != 0:
		pos, tracked := offsets[event.Name]
		if !tracked {
			return nil
		}
		newPos, err := f.readNewLines(ctx, event.Name, pos, out)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Unreadable right now; retry from the old offset on the
			// next write.
			return nil
		}
		offsets[event.Name] = newPos

	case event.Op&fsnotify.Create != 0:
		if f.matchesPatterns(event.Name) && !f.isExcluded(event.Name) {
			offsets[event.Name] = 0
			_ = watcher.Add(event.Name)
		}

	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// The path may come back under rotation; forget the offset so the
		// recreated file starts clean.
		delete(offsets, event.Name)
	}
	return nil
}

// readNewLines emits the complete lines appended since pos and returns the
// offset after the last newline consumed. A partially written final line is
// left for the write event that completes it, so an event never carries a
// torn line.
func (f *FileIngestor) readNewLines(ctx context.Context, path string, pos int64, out chan<- *model.LogEvent) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return pos, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return pos, err
	}
	if info.Size() < pos {
		// Truncated in place.
		pos = 0
	}

	if _, err := file.Seek(pos, io.SeekStart); err != nil {
		return pos, err
	}

	reader := bufio.NewReaderSize(file, scanBufSize)
	for {
		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			return pos, nil
		}
		if err != nil {
			return pos, err
		}

		pos += int64(len(line))
		raw := bytes.TrimRight(line, "\r\n")
		if len(raw) == 0 || len(raw) > maxLineBytes {
			continue
		}

		event := model.NewLogEvent(f.name, raw)
		event.Metadata["file"] = path

		select {
		case out <- event:
		case <-ctx.Done():
			return pos, ctx.Err()
		}
	}
}

// expandPatterns resolves the configured globs into the initial file set.
func (f *FileIngestor) expandPatterns() ([]string, error) {
	var files []string
	for _, pattern := range f.cfg.Paths {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !f.isExcluded(m) {
				files = append(files, m)
			}
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no files matched patterns: %v", f.cfg.Paths)
	}
	return files, nil
}

// isExcluded checks if a file matches any exclude pattern.
func (f *FileIngestor) isExcluded(file string) bool {
	for _, pattern := range f.cfg.Exclude {
		matched, _ := filepath.Match(pattern, filepath.Base(file))
		if matched {
			return true
		}
	}
	return false
}

// matchesPatterns checks if a file matches any configured path pattern.
func (f *FileIngestor) matchesPatterns(file string) bool {
	for _, pattern := range f.cfg.Paths {
		matched, _ := filepath.Match(pattern, file)
		if matched {
			return true
		}
		matched, _ = filepath.Match(pattern, filepath.Base(file))
		if matched {
			return true
		}
	}
	return false
}
