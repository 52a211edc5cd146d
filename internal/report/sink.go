package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// fileStamp is the timestamp layout used in report file names.
const fileStamp = "2006-01-02_15-04"

// Sink stores one rendered report and returns where it went.
type Sink interface {
	Store(ctx context.Context, name string, at time.Time, data []byte) (string, error)
}

// FileName returns "<name>_<YYYY-MM-DD_HH-MM>.csv".
func FileName(name string, at time.Time) string {
	return fmt.Sprintf("%s_%s.csv", name, at.Format(fileStamp))
}

// DirSink writes reports into a local directory, creating it on demand.
type DirSink struct {
	dir string
}

// NewDirSink creates a DirSink rooted at dir.
func NewDirSink(dir string) *DirSink {
	return &DirSink{dir: dir}
}

// Store writes data to dir/FileName(name, at), replacing any existing file.
func (s *DirSink) Store(_ context.Context, name string, at time.Time, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("report: create output dir: %w", err)
	}
	path := filepath.Join(s.dir, FileName(name, at))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("report: write %s: %w", path, err)
	}
	return path, nil
}

// Publish stores data in every sink. A failing sink does not stop the rest;
// the locations that succeeded are returned with the joined errors.
func Publish(ctx context.Context, sinks []Sink, name string, at time.Time, data []byte) ([]string, error) {
	var (
		locations []string
		errs      []error
	)
	for _, s := range sinks {
		loc, err := s.Store(ctx, name, at, data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		locations = append(locations, loc)
	}
	return locations, errors.Join(errs...)
}
