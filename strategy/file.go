package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// FileSource reads strategies from a YAML or JSON file.
//
// Example file:
//
//	default_strategy:
//	  type: ratelimiting
//	  param: 10
//	service_strategies:
//	  - service: checkout
//	    type: ratelimiting
//	    param: 2
type FileSource struct {
	path string
}

var (
	_ Source    = (*FileSource)(nil)
	_ Watcher   = (*FileSource)(nil)
	_ Publisher = (*FileSource)(nil)
)

// NewFileSource creates a source reading path.
func NewFileSource(path string) (*FileSource, error) {
	if path == "" {
		return nil, fmt.Errorf("strategy file path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve strategy file %s: %w", path, err)
	}
	return &FileSource{path: abs}, nil
}

// Path returns the absolute path of the strategy file.
func (s *FileSource) Path() string {
	return s.path
}

// Fetch implements Source.
func (s *FileSource) Fetch(context.Context) (*Strategies, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrNoStrategy, s.path)
		}
		return nil, fmt.Errorf("read strategy file: %w", err)
	}

	var strategies Strategies
	if err := yaml.Unmarshal(data, &strategies); err != nil {
		return nil, fmt.Errorf("parse strategy file %s: %w", s.path, err)
	}
	return &strategies, nil
}

// Publish implements Publisher. The document is written as JSON when the
// file has a .json extension and as YAML otherwise. It goes to a temporary
// file in the same directory first and is renamed into place, so readers
// never see a partial write.
func (s *FileSource) Publish(_ context.Context, strategies *Strategies) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(s.path), ".json") {
		data, err = json.MarshalIndent(strategies, "", "  ")
	} else {
		data, err = yaml.Marshal(strategies)
	}
	if err != nil {
		return fmt.Errorf("encode strategies: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp strategy file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write strategy file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write strategy file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace strategy file %s: %w", s.path, err)
	}
	return nil
}

// Watch implements Watcher using fsnotify. The parent directory is watched so
// that editors which replace the file by rename are also noticed.
func (s *FileSource) Watch(ctx context.Context, notify func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				notify()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("file watcher: %w", err)
		}
	}
}
