// Package spool submits jobs from YAML files placed in a directory.
// The directory is scanned at startup and then watched for changes, batching updates happening within 500ms so files that are being written have time to be completed.
// Files that were submitted are removed; files that can't be parsed or contain invalid jobs are renamed with the ".failed" suffix.
package spool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"sigs.k8s.io/yaml"

	"github.com/italypaleale/timekeeper/jobs"
)

const (
	defaultBatchDelay = 500 * time.Millisecond
	failedSuffix      = ".failed"
)

// File is the content of a file in the spool directory.
type File struct {
	Jobs []jobs.Spec `json:"jobs"`
}

// Options for NewWatcher.
type Options struct {
	// Directory to watch
	Dir string
	// Submitter for the jobs
	Submitter jobs.Submitter
	// Logger; if nil, uses the default slog logger
	Logger *slog.Logger

	// Internal property, used for testing
	batchDelay time.Duration
}

// Watcher submits jobs from files in a spool directory.
type Watcher struct {
	dir        string
	submitter  jobs.Submitter
	log        *slog.Logger
	batchDelay time.Duration
}

// NewWatcher returns a new Watcher.
func NewWatcher(opts Options) (*Watcher, error) {
	if opts.Submitter == nil {
		return nil, errors.New("submitter is required")
	}
	info, err := os.Stat(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to access spool directory '%s': %w", opts.Dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("spool path '%s' is not a directory", opts.Dir)
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.batchDelay <= 0 {
		opts.batchDelay = defaultBatchDelay
	}

	return &Watcher{
		dir:        opts.Dir,
		submitter:  opts.Submitter,
		log:        opts.Logger.With(slog.String("scope", "spool"), slog.String("dir", opts.Dir)),
		batchDelay: opts.batchDelay,
	}, nil
}

// Run processes the files in the directory, then watches it for new files until the context is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck

	err = watcher.Add(w.dir)
	if err != nil {
		return fmt.Errorf("failed to add watched folder: %w", err)
	}

	// Files that were already in the directory
	err = w.ProcessDir(ctx)
	if err != nil {
		return err
	}

	// Channel that fires when a batch of changes is complete; nil if no change is pending
	var batch <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event := <-watcher.Events:
			// Only listen to events where a file is created (included renamed files) or written to
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !isJobFile(event.Name) {
				continue
			}

			// Batch changes so we don't process files that are still being written
			if batch == nil {
				batch = time.After(w.batchDelay)
			}

		case <-batch:
			batch = nil
			err = w.ProcessDir(ctx)
			if err != nil {
				return err
			}

		case watchErr := <-watcher.Errors:
			// Log errors only
			w.log.WarnContext(ctx, "Error while watching for changes to files in the spool directory", slog.Any("error", watchErr))
		}
	}
}

// ProcessDir submits the jobs from all files currently in the directory.
// It returns an error only if jobs can't be submitted to the scheduler.
func (w *Watcher) ProcessDir(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.WarnContext(ctx, "Failed to read spool directory", slog.Any("error", err))
		return nil
	}

	for _, e := range entries {
		if !e.Type().IsRegular() || !isJobFile(e.Name()) {
			continue
		}

		err = w.processFile(ctx, filepath.Join(w.dir, e.Name()))
		if err != nil {
			return err
		}
	}

	return nil
}

func (w *Watcher) processFile(ctx context.Context, path string) error {
	log := w.log.With(slog.String("file", filepath.Base(path)))

	f, err := readFile(path)
	if err != nil {
		log.WarnContext(ctx, "Invalid file in spool directory", slog.Any("error", err))
		renameErr := os.Rename(path, path+failedSuffix)
		if renameErr != nil {
			log.ErrorContext(ctx, "Failed to rename invalid file in spool directory", slog.Any("error", renameErr))
		}
		return nil
	}

	for i, spec := range f.Jobs {
		_, err = jobs.Submit(w.log, w.submitter, spec)
		if err != nil {
			// Keep only the jobs that weren't submitted, so they aren't submitted twice at the next scan
			if i > 0 {
				rewriteErr := writeFile(path, &File{Jobs: f.Jobs[i:]})
				if rewriteErr != nil {
					log.ErrorContext(ctx, "Failed to remove submitted jobs from file in spool directory", slog.Any("error", rewriteErr))
				}
			}
			return fmt.Errorf("failed to submit jobs from file '%s': %w", path, err)
		}
	}

	err = os.Remove(path)
	if err != nil {
		// If the file can't be removed, its jobs would be submitted again at the next scan
		return fmt.Errorf("failed to remove processed file '%s': %w", path, err)
	}

	log.InfoContext(ctx, "Submitted jobs from spool directory", slog.Int("count", len(f.Jobs)))
	return nil
}

// readFile reads a file from the spool directory and validates all the jobs it contains.
func readFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	f := &File{}
	err = yaml.UnmarshalStrict(data, f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}

	for i, spec := range f.Jobs {
		err = spec.Validate()
		if err != nil {
			return nil, fmt.Errorf("job %d is invalid: %w", i, err)
		}
	}

	return f, nil
}

// writeFile replaces the content of a file in the spool directory.
// The data is written to a temporary file first, which is then renamed over the original one.
func writeFile(path string, f *File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to serialize file: %w", err)
	}

	tmp := path + ".tmp"
	err = os.WriteFile(tmp, data, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	err = os.Rename(tmp, path)
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace file: %w", err)
	}

	return nil
}

func isJobFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
