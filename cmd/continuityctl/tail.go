package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"

	"github.com/continuity-store/continuity/core/stream"
)

func runTail(arguments []string) int {
	flagSet := pflag.NewFlagSet("tail", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flags := bindCommonFlags(flagSet)
	var follow bool
	flagSet.BoolVar(&follow, "follow", false, "keep watching today's stream file for new entries")

	if err := flagSet.Parse(arguments); err != nil {
		fmt.Fprintf(os.Stderr, "continuityctl tail: %v\n", err)
		return exitInvalidInput
	}

	cfg, err := flags.loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "continuityctl tail: %v\n", err)
		return exitStoreError
	}

	writer := stream.New(cfg, quietLogger(), nil)
	streamPath := writer.StreamPathForDate(time.Now())

	offset, err := printExistingLines(streamPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "continuityctl tail: %v\n", err)
		return exitStoreError
	}
	if !follow {
		return exitOK
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Fprintf(os.Stderr, "continuityctl tail: create watcher: %v\n", err)
		return exitStoreError
	}
	defer watcher.Close()
	if err := watcher.Add(cfg.StoragePath); err != nil {
		fmt.Fprintf(os.Stderr, "continuityctl tail: watch %s: %v\n", cfg.StoragePath, err)
		return exitStoreError
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return exitOK
			}
			if event.Name != streamPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			newOffset, err := printNewLines(streamPath, offset)
			if err != nil {
				fmt.Fprintf(os.Stderr, "continuityctl tail: %v\n", err)
				continue
			}
			offset = newOffset
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return exitOK
			}
			fmt.Fprintf(os.Stderr, "continuityctl tail: watch error: %v\n", watchErr)
		}
	}
}

// printExistingLines prints whatever is already in the stream file and
// returns the byte offset to resume from.
func printExistingLines(path string) (int64, error) {
	// #nosec G304 -- path is derived from the configured storage path.
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open stream file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read stream file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat stream file: %w", err)
	}
	return info.Size(), nil
}

// printNewLines prints whatever has been appended to path since offset and
// returns the new offset.
func printNewLines(path string, offset int64) (int64, error) {
	// #nosec G304 -- path is derived from the configured storage path.
	file, err := os.Open(path)
	if err != nil {
		return offset, fmt.Errorf("open stream file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek stream file: %w", err)
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return offset, fmt.Errorf("read stream file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat stream file: %w", err)
	}
	return info.Size(), nil
}
