package chat

import "fmt"

// NotFoundError reports an operation against a conversation UID that does not
// exist.
type NotFoundError struct {
	UID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("conversation not found: %s", e.UID)
}

// InactiveConversationError reports an operation against a soft-deleted
// conversation. Inactive conversations reject everything.
type InactiveConversationError struct {
	UID string
}

func (e *InactiveConversationError) Error() string {
	return fmt.Sprintf("conversation is inactive: %s", e.UID)
}
