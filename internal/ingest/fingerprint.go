package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
)

// Fingerprint is the lowercase hex SHA-256 of content.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// FingerprintReader hashes a stream without buffering it.
func FingerprintReader(r io.Reader) (string, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// NewUploadRecord builds a record for content uploaded under displayName.
func NewUploadRecord(displayName string, content []byte) models.UploadRecord {
	return models.UploadRecord{
		Content:     content,
		Fingerprint: Fingerprint(content),
		DisplayName: displayName,
	}
}

// IsFingerprint reports whether s has the shape of a fingerprint.
func IsFingerprint(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
