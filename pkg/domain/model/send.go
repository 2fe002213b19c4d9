package model

// SendRequest is one bulk DM batch requested by the operator
type SendRequest struct {
	RecipientIDs   []SlackUserID `json:"userIds"`
	Text           string        `json:"text"`
	AttachmentsDir string        `json:"attachmentsDir,omitempty"`
}

// SendOutcome is the result for one recipient
type SendOutcome struct {
	RecipientID SlackUserID `json:"userId"`
	Succeeded   bool        `json:"-"`
	Error       string      `json:"error,omitempty"`
}

// SendReport aggregates a batch. Failures only carries failed outcomes.
type SendReport struct {
	BatchID  string        `json:"batchId"`
	OK       bool          `json:"ok"`
	DryRun   bool          `json:"dryRun,omitempty"`
	Sent     int           `json:"sent"`
	Failed   int           `json:"failed"`
	Failures []SendOutcome `json:"failedUsers"`
	LogPath  string        `json:"logPath,omitempty"`
}

// Fail records a failed recipient
func (x *SendReport) Fail(id SlackUserID, msg string) {
	x.Failures = append(x.Failures, SendOutcome{RecipientID: id, Error: msg})
	x.Failed = len(x.Failures)
}

// Sample returns up to n failure messages for display
func (x *SendReport) Sample(n int) []string {
	if n > len(x.Failures) {
		n = len(x.Failures)
	}
	samples := make([]string, 0, n)
	for _, f := range x.Failures[:n] {
		samples = append(samples, string(f.RecipientID)+": "+f.Error)
	}
	return samples
}

// AttachmentsDir describes a validated attachments directory
type AttachmentsDir struct {
	Path     string `json:"path"`
	PDFCount int    `json:"pdfCount"`
}
