package meeting

// InitUploadRequest opens a resumable upload session
type InitUploadRequest struct {
	FileName  string `json:"file_name" validate:"required,max=255"`
	MimeType  string `json:"mime_type" validate:"required,max=100"`
	TotalSize int64  `json:"total_size" validate:"required,gt=0"`
}

// CompleteUploadRequest finalizes a session into a meeting
type CompleteUploadRequest struct {
	Title string `json:"title" validate:"max=255"`
}

// ListMeetingsRequest pages through the caller's meetings
type ListMeetingsRequest struct {
	Limit  int `query:"limit" validate:"omitempty,gte=1,lte=100"`
	Offset int `query:"offset" validate:"omitempty,gte=0"`
}
