package chat

// View is the read-only projection handed to rendering surfaces.
type View struct {
	SessionID  string    `json:"sessionId"`
	Transcript []Message `json:"transcript"`
	Composer   string    `json:"composer"`
	Busy       bool      `json:"busy"`
	CanSubmit  bool      `json:"canSubmit"`
}
