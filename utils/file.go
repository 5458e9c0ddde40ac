package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyFile copies a single file, creating the destination directory if
// needed.
func CopyFile(sourcePath, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %v", err)
	}

	sourceFile, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %v", err)
	}
	defer sourceFile.Close()

	destFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %v", err)
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return fmt.Errorf("failed to copy file: %v", err)
	}
	return nil
}

// CopyDir copies the contents of sourceDir into destDir recursively,
// replacing any existing entries.
func CopyDir(sourceDir, destDir string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %v", err)
	}

	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return fmt.Errorf("failed to read source directory: %v", err)
	}

	for _, entry := range entries {
		source := filepath.Join(sourceDir, entry.Name())
		destination := filepath.Join(destDir, entry.Name())

		if entry.IsDir() {
			if err := os.RemoveAll(destination); err != nil {
				return fmt.Errorf("failed to replace directory %s: %v", destination, err)
			}
			if err := CopyDir(source, destination); err != nil {
				return err
			}
		} else {
			if err := CopyFile(source, destination); err != nil {
				return err
			}
		}
	}
	return nil
}

// ClearDir removes everything inside dir except the named entries.
func ClearDir(dir string, except ...string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read directory: %v", err)
	}

	keep := make(map[string]bool, len(except))
	for _, name := range except {
		keep[name] = true
	}

	for _, entry := range entries {
		if keep[entry.Name()] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %v", entry.Name(), err)
		}
	}
	return nil
}
