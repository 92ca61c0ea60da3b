package system

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestListModels(t *testing.T) {
	testDir := "/tmp/xai_models_test"
	os.MkdirAll(testDir, 0755)
	defer os.RemoveAll(testDir)

	// Two complete model/sidecar pairs plus one orphan without metadata.
	files := []string{
		filepath.Join(testDir, "chest_v1.onnx"),
		filepath.Join(testDir, "chest_v1.json"),
		filepath.Join(testDir, "chest_v2.onnx"),
		filepath.Join(testDir, "chest_v2.json"),
		filepath.Join(testDir, "orphan.onnx"),
	}
	for _, f := range files {
		os.WriteFile(f, []byte("test"), 0644)
	}

	// Make v2 the most recent model.
	old := time.Now().Add(-2 * time.Hour)
	os.Chtimes(files[0], old, old)

	entries, err := ListModels(testDir)
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("Expected 2 usable models, got %d", len(entries))
	}
	if filepath.Base(entries[0].ModelPath) != "chest_v2.onnx" {
		t.Errorf("Expected chest_v2.onnx first, got %s", entries[0].ModelPath)
	}
	if filepath.Base(entries[0].MetadataPath) != "chest_v2.json" {
		t.Errorf("Expected the v2 sidecar, got %s", entries[0].MetadataPath)
	}

	t.Logf("Models found: %d", len(entries))
}

func TestFindLatestModel(t *testing.T) {
	testDir := "/tmp/xai_latest_model_test"
	os.MkdirAll(testDir, 0755)
	defer os.RemoveAll(testDir)

	files := []string{
		filepath.Join(testDir, "a.onnx"),
		filepath.Join(testDir, "b.onnx"),
		filepath.Join(testDir, "ignore.txt"),
	}
	for i, f := range files {
		os.WriteFile(f, []byte("test"), 0644)
		modTime := time.Now().Add(time.Duration(i) * time.Hour)
		os.Chtimes(f, modTime, modTime)
	}

	latest, err := FindLatestModel(testDir)
	if err != nil {
		t.Fatalf("FindLatestModel failed: %v", err)
	}
	if filepath.Base(latest) != "b.onnx" {
		t.Errorf("Expected b.onnx, got %s", latest)
	}

	if _, err := FindLatestModel("/tmp/xai_no_such_dir"); err == nil {
		t.Error("Expected an error for a missing directory")
	}
}

func TestFindLatestInput(t *testing.T) {
	testDir := "/tmp/xai_latest_input_test"
	os.MkdirAll(testDir, 0755)
	defer os.RemoveAll(testDir)

	files := []string{
		filepath.Join(testDir, "old_scan.png"),
		filepath.Join(testDir, "report.pdf"),
		filepath.Join(testDir, "notes.txt"),
	}
	for i, f := range files {
		os.WriteFile(f, []byte("test"), 0644)
		modTime := time.Now().Add(time.Duration(i) * time.Hour)
		os.Chtimes(f, modTime, modTime)
	}

	latest, err := FindLatestInput(testDir)
	if err != nil {
		t.Fatalf("FindLatestInput failed: %v", err)
	}

	// notes.txt is newer but not a scan; the PDF report wins.
	if filepath.Base(latest) != "report.pdf" {
		t.Errorf("Expected report.pdf, got %s", latest)
	}
}
