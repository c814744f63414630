package campaign

import (
	"fmt"
	"strings"
)

// Outcome classifies one sender attempt against a target
type Outcome int

const (
	// OutcomeSent means the message was delivered
	OutcomeSent Outcome = iota
	// OutcomeFailed means the transport reported an error
	OutcomeFailed
	// OutcomeUploadFailed means the attachment never reached the gateway
	OutcomeUploadFailed
	// OutcomeSkipped means the sender had exhausted its daily quota
	OutcomeSkipped
)

// Attempt is the result of one sender trying one target
type Attempt struct {
	SenderID string
	Outcome  Outcome
	// Detail carries the attachment filename for upload failures
	Detail string
	Err    error
}

// Message renders the attempt for the status cell
func (a Attempt) Message() string {
	switch a.Outcome {
	case OutcomeSent:
		return fmt.Sprintf("Sent via %s", a.SenderID)
	case OutcomeFailed:
		return fmt.Sprintf("Failed: Sending Error (%s)", a.SenderID)
	case OutcomeUploadFailed:
		return fmt.Sprintf("Failed: Upload error for %s", a.Detail)
	case OutcomeSkipped:
		return fmt.Sprintf("Skipped: %s rate-limited", a.SenderID)
	}
	return ""
}

// TargetResult collects all attempts against one target row
type TargetResult struct {
	Row       int
	Recipient string
	Attempts  []Attempt
}

// Sent counts delivered attempts
func (r *TargetResult) Sent() int {
	n := 0
	for _, a := range r.Attempts {
		if a.Outcome == OutcomeSent {
			n++
		}
	}
	return n
}

// Status renders the consolidated status cell for the target. total is
// the full sender sequence length, including identities that never
// produced an attempt.
func (r *TargetResult) Status(total int) string {
	messages := make([]string, 0, len(r.Attempts))
	for _, a := range r.Attempts {
		messages = append(messages, a.Message())
	}
	return fmt.Sprintf("Completed: Sent %d/%d. Details: [%s]", r.Sent(), total, strings.Join(messages, ", "))
}
