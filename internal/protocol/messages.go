package protocol

// Record is one batch of committed words, the unit every transport emits.
// Start and End are absolute session time in milliseconds.
type Record struct {
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Text  string `json:"text"`
}

// ErrorRecord is the terminal message sent before an abnormal close.
type ErrorRecord struct {
	Error string `json:"error"`
}

// Error kinds carried by terminal records.
const (
	ErrKindTransport             = "transport"
	ErrKindDecode                = "decode"
	ErrKindRecognizerUnavailable = "recognizer_unavailable"
)

// Transcript mirrors a committed record on the bus for downstream consumers.
type Transcript struct {
	SessionID string `json:"session_id"`
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
	Text      string `json:"text"`
	Final     bool   `json:"final"`
}

// SubjectTranscriptPrefix is the bus subject committed records are published
// under; the session ID is appended as the last token.
const SubjectTranscriptPrefix = "stt.text.final"
