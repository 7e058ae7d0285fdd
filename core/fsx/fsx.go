package fsx

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

func WriteFileAtomic(path string, content []byte, mode os.FileMode) error {
	parent := filepath.Dir(path)
	base := filepath.Base(path)

	tempFile, err := os.CreateTemp(parent, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(content); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tempFile.Chmod(mode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS != "windows" {
			return fmt.Errorf("rename temp file: %w", err)
		}
		if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
			return fmt.Errorf("remove destination before rename: %w", removeErr)
		}
		if renameErr := os.Rename(tempPath, path); renameErr != nil {
			return fmt.Errorf("rename temp file after remove: %w", renameErr)
		}
	}
	cleanup = false

	// #nosec G304 -- parent directory path is derived from explicit caller-provided destination path.
	if dirHandle, err := os.Open(parent); err == nil {
		_ = dirHandle.Sync()
		_ = dirHandle.Close()
	}
	return nil
}

// ListFilesWithAffixes returns every regular file under dir whose name has
// the given prefix and suffix, sorted lexically. Used by both the stream
// writer and the validator so file discovery never drifts between the two.
func ListFilesWithAffixes(dir, prefix, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix) {
			files = append(files, filepath.Join(dir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

// ReadNonEmptyLines reads path and returns its non-blank lines, trimmed of
// surrounding whitespace. A truncated final line left by an in-flight
// write is returned like any other line (bufio.Scanner yields the
// unterminated tail at EOF); callers decide what to do with a line that
// does not parse. Scanner errors are not reported: reading stops there.
func ReadNonEmptyLines(path string) ([]string, error) {
	// #nosec G304 -- path is constructed by the caller from a configured storage path.
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// ErrAlreadyExists is returned by CreateExclusive when path already exists.
var ErrAlreadyExists = os.ErrExist

// CreateExclusive writes content to path using O_CREATE|O_EXCL so a second
// writer racing to create the same file (e.g. two appends straddling a
// rotation boundary) fails instead of silently overwriting the first
// writer's header line. Returns ErrAlreadyExists (wrapping os.IsExist) if
// another writer won the race; callers should treat that as success, not
// failure.
func CreateExclusive(path string, content []byte, mode os.FileMode) error {
	parent := filepath.Dir(path)
	if parent != "." && parent != "" {
		if err := os.MkdirAll(parent, 0o750); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	// #nosec G304 -- path is validated by the caller before reaching here.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if err != nil {
		if os.IsExist(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create exclusive file: %w", err)
	}
	defer func() { _ = file.Close() }()
	if _, err := file.Write(content); err != nil {
		return fmt.Errorf("write exclusive file: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync exclusive file: %w", err)
	}
	return nil
}
