package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// IntegrityResult collects the outcome of checking a config against its
// .checksums manifest.
type IntegrityResult struct {
	Passed   bool
	Locked   bool
	Warnings []string
	Errors   []string
}

// IntegrityError is returned by Load when verification fails.
type IntegrityError struct {
	Result *IntegrityResult
}

func (e *IntegrityError) Error() string {
	return "config integrity check failed: " + strings.Join(e.Result.Errors, "; ") +
		"\nIf you edited the file intentionally, run: lantrn config lock"
}

// VerifyIntegrity checks configPath against the .checksums manifest in its
// directory. A missing manifest is a warning; an unlisted or changed file
// is an error.
func VerifyIntegrity(configPath string) (*IntegrityResult, error) {
	dir, name := filepath.Dir(configPath), filepath.Base(configPath)
	result := &IntegrityResult{Passed: true}

	manifest, err := LoadChecksums(dir)
	if err != nil {
		return nil, err
	}
	if manifest == nil {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("no %s manifest found in %s; run 'lantrn config lock' to enable integrity verification", ChecksumFile, dir))
		return result, nil
	}
	result.Locked = true

	expected, ok := manifest.Hashes[name]
	if !ok {
		result.Passed = false
		result.Errors = append(result.Errors, fmt.Sprintf("file %s not in %s manifest", name, ChecksumFile))
		return result, nil
	}
	if err := VerifyFileHash(configPath, expected); err != nil {
		result.Passed = false
		result.Errors = append(result.Errors, err.Error())
	}
	return result, nil
}
