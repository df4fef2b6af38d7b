package records

import (
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
)

// RecordIDLength is the length of generated record ids.
const RecordIDLength = 12

// NewRecordID returns a 12-character URL-safe random token. Random bytes
// are base58-encoded so the result stays alphanumeric (topic strings
// embed record ids verbatim).
func NewRecordID() (string, error) {
	for {
		buf := make([]byte, 10)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate record id: %w", err)
		}
		id := base58.Encode(buf)
		// Leading zero bytes shorten the encoding; redraw on the rare
		// short result instead of padding.
		if len(id) >= RecordIDLength {
			return id[:RecordIDLength], nil
		}
	}
}
