package store

import "time"

// DedupRepo tracks inbound message IDs so the router can discard WhatsApp
// redeliveries before any state is mutated.
//
// RecordInbound inserts the message ID and reports whether this delivery
// should be processed: true for the first delivery, and true again for a
// redelivery whose earlier turn never reached MarkProcessed (aborted or
// crashed mid-processing). A false return means the message already ran to
// completion and must not be processed again. MarkProcessed stamps the record
// once the full pipeline has run.
type DedupRepo interface {
	RecordInbound(messageID, senderPhone string, at time.Time) (bool, error)
	MarkProcessed(messageID string) error
	IsDuplicate(messageID string) (bool, error)
}
