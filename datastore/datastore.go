// Package datastore persists flat lists (one item per line) such as the
// autoplaylist and the user blacklist. Every save rewrites the whole file
// through a temp file and an atomic rename, keeping a few rolling backups.
package datastore

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Config holds configuration options for a ListFile
type Config struct {
	FilePath    string
	BackupCount int // Number of backup files to keep (0 = none)
	Logger      *log.Logger
}

// DefaultConfig returns a default configuration
func DefaultConfig(filePath string) *Config {
	return &Config{
		FilePath:    filePath,
		BackupCount: 3,
		Logger:      log.New(os.Stderr, "[datastore] ", log.LstdFlags),
	}
}

// ListFile is a line-oriented file of items. Blank lines and lines starting
// with '#' are ignored on load and dropped on save.
type ListFile struct {
	mu           sync.Mutex
	file         string
	config       *Config
	lastChecksum string
}

// Open opens (or creates empty) the list file at filePath
func Open(filePath string) (*ListFile, error) {
	return OpenWithConfig(DefaultConfig(filePath))
}

// OpenWithConfig opens a list file with custom configuration
func OpenWithConfig(config *Config) (*ListFile, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.FilePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	if config.Logger == nil {
		config.Logger = log.New(io.Discard, "", 0)
	}

	dir := filepath.Dir(config.FilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	lf := &ListFile{file: config.FilePath, config: config}

	if _, err := os.Stat(config.FilePath); os.IsNotExist(err) {
		if err := lf.writeFileAtomic(nil); err != nil {
			return nil, fmt.Errorf("failed to create empty list file: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to check file existence: %w", err)
	}

	return lf, nil
}

// Path returns the backing file path
func (lf *ListFile) Path() string {
	return lf.file
}

// Load reads all items from disk
func (lf *ListFile) Load() ([]string, error) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	data, err := os.ReadFile(lf.file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var items []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		items = append(items, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}

	lf.lastChecksum = calculateChecksum(encode(items))
	return items, nil
}

// Save rewrites the file with items, skipping the write when nothing changed
func (lf *ListFile) Save(items []string) error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	data := encode(items)
	checksum := calculateChecksum(data)
	if checksum == lf.lastChecksum {
		return nil
	}

	if lf.config.BackupCount > 0 {
		if err := lf.createBackup(); err != nil {
			lf.config.Logger.Printf("Failed to create backup: %v", err)
		}
	}

	if err := lf.writeFileAtomic(data); err != nil {
		return err
	}

	if err := lf.verifyFile(data); err != nil {
		return fmt.Errorf("file verification failed: %w", err)
	}

	lf.lastChecksum = checksum
	return nil
}

func encode(items []string) []byte {
	var buf bytes.Buffer
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		buf.WriteString(item)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// writeFileAtomic performs atomic file write using temporary file and rename
func (lf *ListFile) writeFileAtomic(data []byte) error {
	tmpFile := lf.file + ".tmp"

	file, err := os.OpenFile(tmpFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to open temp file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	file.Close()

	if err := os.Rename(tmpFile, lf.file); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// verifyFile verifies that the written file matches expected data
func (lf *ListFile) verifyFile(expected []byte) error {
	actual, err := os.ReadFile(lf.file)
	if err != nil {
		return fmt.Errorf("failed to read file for verification: %w", err)
	}
	if calculateChecksum(actual) != calculateChecksum(expected) {
		return fmt.Errorf("file checksum mismatch")
	}
	return nil
}

// createBackup creates a timestamped backup of the current file
func (lf *ListFile) createBackup() error {
	src, err := os.Open(lf.file)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer src.Close()

	backupFile := fmt.Sprintf("%s.backup.%s", lf.file, time.Now().Format("20060102_150405.000000000"))
	dst, err := os.Create(backupFile)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}

	lf.cleanupOldBackups()
	return nil
}

// cleanupOldBackups removes old backup files beyond the configured limit
func (lf *ListFile) cleanupOldBackups() {
	matches, err := filepath.Glob(lf.file + ".backup.*")
	if err != nil || len(matches) <= lf.config.BackupCount {
		return
	}

	// names embed the timestamp, so lexical order is age order
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-lf.config.BackupCount] {
		os.Remove(old)
	}
}

// calculateChecksum computes SHA-256 checksum of data
func calculateChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
