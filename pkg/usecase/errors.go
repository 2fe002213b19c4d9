package usecase

import "errors"

// Sentinel errors for use case layer
var (
	// Roster errors
	ErrRosterFileNotFound = errors.New("roster file not found")

	// Attachment errors
	ErrAttachmentsDirInvalid = errors.New("attachments directory is not a directory")

	// Dispatch errors
	ErrNoRecipients = errors.New("no recipients")
	ErrEmptyMessage = errors.New("message text is empty")
)

// Context keys for error values
const (
	CSVPathKey = "csv_path"
	BatchIDKey = "batch_id"
	UserIDKey  = "user_id"
	DirPathKey = "dir_path"
)
