package service

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"watchlog/internal/timeutil"
)

// BackupService handles database backup operations
type BackupService struct {
	dbPath     string
	backupDir  string
	maxBackups int
}

// NewBackupService creates a new BackupService
func NewBackupService(dbPath, backupDir string) *BackupService {
	return &BackupService{
		dbPath:     dbPath,
		backupDir:  backupDir,
		maxBackups: 4, // keep last 4 weekly backups
	}
}

// Backup creates a timestamped copy of the database file.
func (b *BackupService) Backup() (string, error) {
	if err := os.MkdirAll(b.backupDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	timestamp := timeutil.Now().Format("2006-01-02_150405")
	backupName := fmt.Sprintf("watchlog_backup_%s.db", timestamp)
	backupPath := filepath.Join(b.backupDir, backupName)

	if err := copyFile(b.dbPath, backupPath); err != nil {
		return "", fmt.Errorf("failed to copy database: %w", err)
	}

	if err := b.CleanOldBackups(); err != nil {
		// Backup itself succeeded
		log.Printf("Warning: failed to clean old backups: %v", err)
	}

	return backupPath, nil
}

// GetLastBackupTime returns the time of the most recent backup.
func (b *BackupService) GetLastBackupTime() (time.Time, error) {
	backups, err := b.listBackups()
	if err != nil {
		return time.Time{}, err
	}
	if len(backups) == 0 {
		return time.Time{}, nil
	}

	info, err := os.Stat(backups[len(backups)-1])
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to stat backup file: %w", err)
	}
	return info.ModTime(), nil
}

// CleanOldBackups removes old backups, keeping only the most recent ones.
func (b *BackupService) CleanOldBackups() error {
	backups, err := b.listBackups()
	if err != nil {
		return err
	}
	if len(backups) <= b.maxBackups {
		return nil
	}
	for _, path := range backups[:len(backups)-b.maxBackups] {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", path, err)
		}
	}
	return nil
}

// listBackups returns backup file paths sorted oldest first.
func (b *BackupService) listBackups() ([]string, error) {
	entries, err := os.ReadDir(b.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "watchlog_backup_") && strings.HasSuffix(name, ".db") {
			backups = append(backups, filepath.Join(b.backupDir, name))
		}
	}
	sort.Strings(backups)
	return backups, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
