package system

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

func InitResourceLimits() {
	var rLimit syscall.Rlimit
	err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		log.Printf("[!] Failed to read the open file limit: %v", err)
		return
	}

	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	err = syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		log.Printf("[!] Failed to raise the open file limit: %v", err)
	} else {
		fmt.Printf("[*] Open file limit raised to %d\n", rLimit.Cur)
	}
}

// WorkerCount reports how many mask workers to run. Logical cores, because
// mask synthesis is pure arithmetic and scales with hyperthreads.
func WorkerCount() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return runtime.NumCPU()
	}
	return n
}

// FindLatestModel returns the most recently modified .onnx file in dir.
func FindLatestModel(dir string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if !f.IsDir() && strings.HasSuffix(strings.ToLower(f.Name()), ".onnx") {
			info, err := f.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(latestTime) {
				latestTime = info.ModTime()
				latestFile = filepath.Join(dir, f.Name())
			}
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("no .onnx models found in %s", dir)
	}

	return latestFile, nil
}

// ModelEntry pairs a model file with its metadata sidecar.
type ModelEntry struct {
	ModelPath    string
	MetadataPath string
}

// ListModels returns the usable models in dir, newest first. A model is
// usable only when its metadata sidecar (same name, .json) sits next to it.
func ListModels(dir string) ([]ModelEntry, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var entries []ModelEntry
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(strings.ToLower(f.Name()), ".onnx") {
			continue
		}
		modelPath := filepath.Join(dir, f.Name())
		sidecar := strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + ".json"
		if _, err := os.Stat(sidecar); err != nil {
			continue
		}
		entries = append(entries, ModelEntry{ModelPath: modelPath, MetadataPath: sidecar})
	}

	sort.Slice(entries, func(i, j int) bool {
		infoI, _ := os.Stat(entries[i].ModelPath)
		infoJ, _ := os.Stat(entries[j].ModelPath)
		return infoI.ModTime().After(infoJ.ModTime())
	})

	return entries, nil
}

// FindLatestInput returns the most recently modified scan in path. Accepts
// a directory or a file; given a file it searches the containing directory,
// the run always picks up the newest scan dropped into the input folder.
func FindLatestInput(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	var searchDir string
	if fi.IsDir() {
		searchDir = path
	} else {
		searchDir = filepath.Dir(path)
	}

	files, err := os.ReadDir(searchDir)
	if err != nil {
		return "", err
	}

	extensions := []string{".jpg", ".jpeg", ".png", ".webp", ".pdf"}
	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() {
			continue
		}
		isInput := false
		for _, ext := range extensions {
			if strings.HasSuffix(strings.ToLower(f.Name()), ext) {
				isInput = true
				break
			}
		}
		if isInput {
			info, err := f.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(latestTime) {
				latestTime = info.ModTime()
				latestFile = filepath.Join(searchDir, f.Name())
			}
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("no scans found in %s", searchDir)
	}

	return latestFile, nil
}
