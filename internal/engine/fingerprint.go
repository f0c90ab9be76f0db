package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/miradorstack/mirador-feedback/internal/models"
)

const (
	fingerprintHexLength = 32
	normalizedMessageMax = 200
)

var (
	uuidPattern      = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	timestampPattern = regexp.MustCompile(`[0-9]{13,}`)
	numberPattern    = regexp.MustCompile(`[0-9]+`)
)

// NormalizeMessage replaces identifiers that vary between occurrences of the same error
// with placeholders. Replacement order matters: UUIDs contain digit runs and epoch-millis
// timestamps are digit runs, so both are collapsed before plain numbers. Truncation is
// applied to the normalized text so it never splits a token that would have been replaced.
func NormalizeMessage(message string) string {
	normalized := uuidPattern.ReplaceAllString(message, "UUID")
	normalized = timestampPattern.ReplaceAllString(normalized, "TIMESTAMP")
	normalized = numberPattern.ReplaceAllString(normalized, "N")
	if runes := []rune(normalized); len(runes) > normalizedMessageMax {
		normalized = string(runes[:normalizedMessageMax])
	}
	return normalized
}

// Fingerprint returns the clustering key for an error event.
func Fingerprint(ev models.ErrorEvent) string {
	return FingerprintParts(ev.ErrorType, ev.Service, ev.Message)
}

// FingerprintParts hashes error type, service and normalized message into a fixed-length
// hex key.
func FingerprintParts(errorType, service, message string) string {
	key := strings.Join([]string{errorType, service, NormalizeMessage(message)}, ":")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:fingerprintHexLength]
}
