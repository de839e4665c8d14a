package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// fingerprintLen keeps cache filenames short while leaving collision
// probability negligible.
const fingerprintLen = 32

// Fingerprint computes the deterministic cache key for a stage execution
// from the stage name and its inputs (stage config, artifact identity,
// upstream content hash). Inputs are serialized as canonical JSON —
// encoding/json emits struct fields in declaration order and sorts map keys,
// so identical inputs yield byte-identical fingerprints across processes.
// There is no wall-clock or random component.
func Fingerprint(stage string, parts ...any) (string, error) {
	payload := struct {
		Stage string `json:"stage"`
		Parts []any  `json:"parts"`
	}{Stage: stage, Parts: parts}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal fingerprint inputs: %w", err)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:fingerprintLen], nil
}

// FileHash returns the hex sha256 of a file's content, used as the upstream
// content hash input to downstream fingerprints.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for hashing: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
