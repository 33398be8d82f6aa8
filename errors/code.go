package errors

// ErrorCode identifies an application error condition independent of transport.
type ErrorCode int

const (
	ErrorCode_HTTP_OK ErrorCode = 0

	// General
	ErrorCode_INTERNAL         ErrorCode = 1000
	ErrorCode_INVALID_ARGUMENT ErrorCode = 1001
	ErrorCode_NOT_FOUND        ErrorCode = 1002
	ErrorCode_ALREADY_EXISTS   ErrorCode = 1003
	ErrorCode_PERMISSION_DENIED ErrorCode = 1004
	ErrorCode_UNAUTHENTICATED  ErrorCode = 1005
	ErrorCode_INVALID_PAYLOAD  ErrorCode = 1006

	// Meetings & uploads
	ErrorCode_MEETING_NOT_FOUND     ErrorCode = 2000
	ErrorCode_MEETING_INVALID_STATE ErrorCode = 2001
	ErrorCode_UPLOAD_FAILED         ErrorCode = 2002
	ErrorCode_UPLOAD_SESSION_EXPIRED ErrorCode = 2003
	ErrorCode_FILE_MISSING          ErrorCode = 2004

	// Quota
	ErrorCode_QUOTA_EXCEEDED ErrorCode = 3000

	// Pipeline / provider
	ErrorCode_PROVIDER_TRANSIENT ErrorCode = 4000
	ErrorCode_PROVIDER_PERMANENT ErrorCode = 4001
	ErrorCode_TRANSCRIPTION_FAILED ErrorCode = 4002
	ErrorCode_MINUTES_FAILED     ErrorCode = 4003
	ErrorCode_JOB_NOT_FOUND      ErrorCode = 4004
	ErrorCode_JOB_CANCELLED      ErrorCode = 4005
	ErrorCode_STAGE_LEASE_LOST   ErrorCode = 4006

	// Integrations
	ErrorCode_INTEGRATION_STORAGE_FAILED ErrorCode = 5000
	ErrorCode_INTEGRATION_CACHE_FAILED   ErrorCode = 5001
	ErrorCode_DB_QUERY_FAILED            ErrorCode = 5002
)

var codeNames = map[ErrorCode]string{
	ErrorCode_HTTP_OK:                    "OK",
	ErrorCode_INTERNAL:                   "INTERNAL",
	ErrorCode_INVALID_ARGUMENT:           "INVALID_ARGUMENT",
	ErrorCode_NOT_FOUND:                  "NOT_FOUND",
	ErrorCode_ALREADY_EXISTS:             "ALREADY_EXISTS",
	ErrorCode_PERMISSION_DENIED:          "PERMISSION_DENIED",
	ErrorCode_UNAUTHENTICATED:            "UNAUTHENTICATED",
	ErrorCode_INVALID_PAYLOAD:            "INVALID_PAYLOAD",
	ErrorCode_MEETING_NOT_FOUND:          "MEETING_NOT_FOUND",
	ErrorCode_MEETING_INVALID_STATE:      "MEETING_INVALID_STATE",
	ErrorCode_UPLOAD_FAILED:              "UPLOAD_FAILED",
	ErrorCode_UPLOAD_SESSION_EXPIRED:     "UPLOAD_SESSION_EXPIRED",
	ErrorCode_FILE_MISSING:               "FILE_MISSING",
	ErrorCode_QUOTA_EXCEEDED:             "QUOTA_EXCEEDED",
	ErrorCode_PROVIDER_TRANSIENT:         "PROVIDER_TRANSIENT",
	ErrorCode_PROVIDER_PERMANENT:         "PROVIDER_PERMANENT",
	ErrorCode_TRANSCRIPTION_FAILED:       "TRANSCRIPTION_FAILED",
	ErrorCode_MINUTES_FAILED:             "MINUTES_FAILED",
	ErrorCode_JOB_NOT_FOUND:              "JOB_NOT_FOUND",
	ErrorCode_JOB_CANCELLED:              "JOB_CANCELLED",
	ErrorCode_STAGE_LEASE_LOST:           "STAGE_LEASE_LOST",
	ErrorCode_INTEGRATION_STORAGE_FAILED: "INTEGRATION_STORAGE_FAILED",
	ErrorCode_INTEGRATION_CACHE_FAILED:   "INTEGRATION_CACHE_FAILED",
	ErrorCode_DB_QUERY_FAILED:            "DB_QUERY_FAILED",
}

// String returns the symbolic name of the code.
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}
