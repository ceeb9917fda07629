// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package retention

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/formworks/formworks/internal/logging"
)

// ArchiveFormat selects the on-disk serialization of archived records.
type ArchiveFormat string

const (
	FormatJSON     ArchiveFormat = "json"
	FormatCSV      ArchiveFormat = "csv"
	FormatJSONGzip ArchiveFormat = "json.gz"
)

// ArchiveRecord is the entity-neutral shape records take in an archive
// file. Sources convert their native records into this before archival.
type ArchiveRecord struct {
	ID         string                 `json:"id"`
	TenantID   string                 `json:"tenant_id"`
	EntityType EntityType             `json:"entity_type"`
	CreatedAt  time.Time              `json:"created_at"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// Archiver writes archive files under a per-tenant directory. Files are
// written to a temporary name and renamed into place so a crash never
// leaves a partial archive at its final location.
type Archiver struct {
	baseDir string
}

// NewArchiver creates an archiver rooted at baseDir.
func NewArchiver(baseDir string) *Archiver {
	return &Archiver{baseDir: baseDir}
}

// BaseDir returns the archive root directory.
func (a *Archiver) BaseDir() string {
	return a.baseDir
}

// Write serializes the records and returns the final file path and the
// number of bytes written.
func (a *Archiver) Write(tenantID string, entityType EntityType, format ArchiveFormat, archiveRecords []ArchiveRecord) (string, int64, error) {
	dir := filepath.Join(a.baseDir, tenantID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", 0, fmt.Errorf("failed to create archive directory: %w", err)
	}

	name := fmt.Sprintf("%s-%s.%s", entityType, time.Now().UTC().Format("20060102T150405Z"), string(format))
	finalPath := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, ".archive-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create archive temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		// Best-effort cleanup when the write did not reach the rename.
		if _, statErr := os.Stat(tmpPath); statErr == nil {
			if rmErr := os.Remove(tmpPath); rmErr != nil {
				logging.Warn().Err(rmErr).Str("path", tmpPath).Msg("Failed to remove stale archive temp file")
			}
		}
	}()

	if err := writeArchive(tmp, format, archiveRecords); err != nil {
		closeQuietly(tmp)
		return "", 0, err
	}
	if err := tmp.Sync(); err != nil {
		closeQuietly(tmp)
		return "", 0, fmt.Errorf("failed to sync archive file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to close archive file: %w", err)
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to stat archive file: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", 0, fmt.Errorf("failed to finalize archive file: %w", err)
	}

	return finalPath, info.Size(), nil
}

func writeArchive(f *os.File, format ArchiveFormat, archiveRecords []ArchiveRecord) error {
	switch format {
	case FormatJSON:
		return writeJSON(f, archiveRecords)
	case FormatCSV:
		return writeCSV(f, archiveRecords)
	case FormatJSONGzip:
		gz := gzip.NewWriter(f)
		if err := writeJSON(gz, archiveRecords); err != nil {
			closeQuietly(gz)
			return err
		}
		if err := gz.Close(); err != nil {
			return fmt.Errorf("failed to finish gzip stream: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported archive format: %s", format)
	}
}

func writeJSON(w interface{ Write([]byte) (int, error) }, archiveRecords []ArchiveRecord) error {
	data, err := json.MarshalIndent(archiveRecords, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode archive records: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write archive records: %w", err)
	}
	return nil
}

func writeCSV(f *os.File, archiveRecords []ArchiveRecord) error {
	w := csv.NewWriter(f)

	header := []string{"id", "tenant_id", "entity_type", "created_at", "fields"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write archive header: %w", err)
	}

	for i := range archiveRecords {
		r := &archiveRecords[i]
		fields := "{}"
		if len(r.Fields) > 0 {
			if data, err := json.Marshal(r.Fields); err == nil {
				fields = string(data)
			}
		}
		row := []string{
			r.ID,
			r.TenantID,
			string(r.EntityType),
			r.CreatedAt.UTC().Format(time.RFC3339),
			fields,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write archive row %d: %w", i, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush archive rows: %w", err)
	}
	return nil
}

func closeQuietly(c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		logging.Debug().Err(err).Msg("Close failed")
	}
}

// CleanupTempFiles removes orphaned archive temp files older than the
// given age, across all tenant directories. Returns the number removed.
func (a *Archiver) CleanupTempFiles(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(a.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read archive directory: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		tenantDir := filepath.Join(a.baseDir, entry.Name())
		matches, err := filepath.Glob(filepath.Join(tenantDir, ".archive-*"))
		if err != nil {
			continue
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(match); err != nil {
				logging.Warn().Err(err).Str("path", match).Msg("Failed to remove orphaned archive temp file")
				continue
			}
			removed++
		}
	}
	return removed, nil
}
