package convo

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Common errors
var (
	// ErrInvalidConfig is returned when the service configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConversationNotFound is returned when a conversation does not exist
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrEmptyMessage is returned when SendMessage is given blank content
	ErrEmptyMessage = errors.New("message content is empty")

	// ErrStorageError is returned when a storage operation failed
	ErrStorageError = errors.New("storage operation failed")
)

// PipelineError represents an error with additional context
type PipelineError struct {
	Op             string         // Operation that failed
	Err            error          // Underlying error
	ConversationID uuid.UUID      // Conversation ID if applicable
	Context        map[string]any // Additional context
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.ConversationID != uuid.Nil {
		return fmt.Sprintf("%s (conversation=%s): %v", e.Op, e.ConversationID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// WithContext adds additional context to the error
func (e *PipelineError) WithContext(key string, value any) *PipelineError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewPipelineError creates a new PipelineError
func NewPipelineError(op string, err error) *PipelineError {
	return &PipelineError{
		Op:  op,
		Err: err,
	}
}

// NewPipelineErrorWithConversation creates a new PipelineError scoped to a conversation
func NewPipelineErrorWithConversation(op string, conversationID uuid.UUID, err error) *PipelineError {
	return &PipelineError{
		Op:             op,
		Err:            err,
		ConversationID: conversationID,
	}
}
