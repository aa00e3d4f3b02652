package api

const (
	StatusUploaded   = "uploaded"
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

type UploadTicket struct {
	UploadURL  string `json:"uploadUrl"`
	StorageKey string `json:"storageKey"`
	PublicURL  string `json:"publicUrl"`
}

type CompleteUpload struct {
	StorageKey   string `json:"storageKey"`
	PublicURL    string `json:"publicUrl"`
	OriginalName string `json:"originalName"`
	ContentType  string `json:"contentType"`
}

// FileRef is returned by upload-complete and upload-text.
type FileRef struct {
	FileID string  `json:"fileId"`
	Status string  `json:"status"`
	Text   *string `json:"text,omitempty"`
}

type FileStatus struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Text   *string `json:"text,omitempty"`
	Error  *string `json:"error,omitempty"`
}

// Terminal reports whether the record will not change without a retry.
func (s *FileStatus) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusError
}

type errorBody struct {
	Error     string `json:"error"`
	Remaining int64  `json:"remaining"`
	Limit     int64  `json:"limit"`
}
