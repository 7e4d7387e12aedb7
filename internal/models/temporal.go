package models

// RetentionParams is the input of the retention workflow
type RetentionParams struct {
	DaysOld int `json:"days_old"`
}

// CleanupError records why one invite could not be cleaned up
type CleanupError struct {
	InviteID string `json:"invite_id"`
	Error    string `json:"error"`
}

// CleanupReport is the result of one retention pass
type CleanupReport struct {
	Processed int            `json:"processed"`
	Deleted   int            `json:"deleted"`
	Errors    []CleanupError `json:"errors,omitempty"`
}
