package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateChecksumsWithReportDryRun(t *testing.T) {
	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, FileName), []byte("service: {}\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	report, err := GenerateChecksumsWithReport(tmpDir, []string{FileName, "extra.yaml"}, true)
	if err != nil {
		t.Fatalf("GenerateChecksumsWithReport() failed: %v", err)
	}
	if report.Written {
		t.Fatal("report.Written = true, want false in dry-run")
	}
	if len(report.Files) != 2 {
		t.Fatalf("len(report.Files) = %d, want 2", len(report.Files))
	}
	if !report.Files[0].Exists || report.Files[0].Hash == "" {
		t.Fatal("config.yaml should exist with computed hash")
	}
	if report.Files[1].Exists || report.Files[1].Hash != "" {
		t.Fatal("extra.yaml should be reported as missing without hash")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, ChecksumFile)); !os.IsNotExist(err) {
		t.Fatal(".checksums should not be written in dry-run mode")
	}
}

func TestLockWritesLoadableManifest(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, FileName)
	if err := os.WriteFile(path, []byte("service: {}\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Lock(tmpDir, false); err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	manifest, err := LoadChecksums(tmpDir)
	if err != nil {
		t.Fatalf("LoadChecksums() failed: %v", err)
	}
	want, err := ComputeBlake3Hash(path)
	if err != nil {
		t.Fatal(err)
	}
	if manifest.Hashes[FileName] != want {
		t.Fatalf("hash = %q, want %q", manifest.Hashes[FileName], want)
	}
	if err := VerifyFileHash(path, want); err != nil {
		t.Fatalf("VerifyFileHash() error = %v", err)
	}
}

func TestLoadChecksumsMissingAndBadVersion(t *testing.T) {
	tmpDir := t.TempDir()

	manifest, err := LoadChecksums(tmpDir)
	if err != nil || manifest != nil {
		t.Fatalf("LoadChecksums() = %v, %v; want nil, nil", manifest, err)
	}

	if err := os.WriteFile(filepath.Join(tmpDir, ChecksumFile), []byte("version: 9\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadChecksums(tmpDir); err == nil {
		t.Fatal("expected unsupported version error")
	}
}

func TestVerifyIntegrityUnlockedWarns(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, FileName)
	if err := os.WriteFile(path, []byte("{}\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	result, err := VerifyIntegrity(path)
	if err != nil {
		t.Fatalf("VerifyIntegrity() error = %v", err)
	}
	if !result.Passed || result.Locked || len(result.Warnings) != 1 {
		t.Fatalf("result = %+v", result)
	}
}
