// Package util provides identifier, document number and clock helpers.
package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IDGenerator produces time-ordered UUIDv7 identifiers. It is safe for
// concurrent use.
type IDGenerator struct{}

// NewIDGenerator creates a new ID generator.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// NewID generates a new UUIDv7 identifier. UUIDv7 keeps primary keys in
// insertion order, which keeps SQLite B-tree inserts append-mostly.
func (g *IDGenerator) NewID() string {
	return NewID()
}

// NewID generates a new UUIDv7 identifier.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Only fails when the random source does.
		return uuid.New().String()
	}
	return id.String()
}

// ParseID validates and normalizes a UUID string.
func ParseID(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid ID format: %w", err)
	}
	return id.String(), nil
}

// IsValidID checks if a string is a valid UUID.
func IsValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// Document number prefixes.
const (
	PrefixTransaction  = "STK"
	PrefixDispense     = "DSP"
	PrefixPrescription = "RX"
)

// DocumentNumber returns a human-readable unique number such as
// STK-20260301-0192F3A4B5C6. The suffix is the random tail of a UUIDv7.
func DocumentNumber(prefix string, t time.Time) string {
	tail := strings.ReplaceAll(NewID(), "-", "")
	return fmt.Sprintf("%s-%s-%s", prefix, t.UTC().Format("20060102"), strings.ToUpper(tail[20:]))
}

// DeterministicID returns a stable UUID for seed, for tests and demo data.
func DeterministicID(seed int64) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("pharmacore-%d", seed))).String()
}
