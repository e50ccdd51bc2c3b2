package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

// ChecksumSuffix is appended to the config path to name its checksum file.
const ChecksumSuffix = ".b3"

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// VerifyFileHash verifies a file against an expected BLAKE3 hash.
func VerifyFileHash(filePath, expectedHash string) error {
	actualHash, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}

	if actualHash != expectedHash {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s",
			filepath.Base(filePath), expectedHash, actualHash)
	}

	return nil
}

// WriteChecksum records the config file's current hash next to it. Run after
// any intentional edit.
func WriteChecksum(configPath string) error {
	hash, err := ComputeBlake3Hash(configPath)
	if err != nil {
		return err
	}
	// Restrictive permissions, the hash gates config trust.
	if err := os.WriteFile(configPath+ChecksumSuffix, []byte(hash+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write checksum: %w", err)
	}
	return nil
}

// VerifyChecksum checks the config file against its recorded hash. A missing
// checksum file is an error so tampering can't hide by deleting it.
func VerifyChecksum(configPath string) error {
	data, err := os.ReadFile(configPath + ChecksumSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("checksum file not found (run 'querydeck doctor --hash-update')")
		}
		return fmt.Errorf("failed to read checksum: %w", err)
	}

	expected := strings.TrimSpace(string(data))
	if err := VerifyFileHash(configPath, expected); err != nil {
		return fmt.Errorf("config verification failed: %w", err)
	}
	return nil
}
