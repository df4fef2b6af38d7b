package realtime

import (
	"strings"

	"github.com/bunbase/bunbase/internal/schema"
)

// Wildcard subscribes a client to every record of a collection.
const Wildcard = "*"

// Subscription identifies one topic: a collection plus either a record
// id or the wildcard.
type Subscription struct {
	Collection string
	RecordID   string
}

// String renders the subscription back into topic form.
func (s Subscription) String() string {
	return s.Collection + "/" + s.RecordID
}

// ParseTopic parses "collection/recordId" or "collection/*". Invalid
// topics return ok == false and are silently dropped by the caller.
func ParseTopic(topic string) (Subscription, bool) {
	collection, recordID, found := strings.Cut(topic, "/")
	if !found || collection == "" || recordID == "" {
		return Subscription{}, false
	}
	if !schema.ValidIdentifier(collection) || strings.HasPrefix(collection, "_") {
		return Subscription{}, false
	}
	if recordID != Wildcard && !alphanumeric(recordID) {
		return Subscription{}, false
	}
	return Subscription{Collection: collection, RecordID: recordID}, true
}

func alphanumeric(s string) bool {
	for _, r := range s {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return false
		}
	}
	return s != ""
}
