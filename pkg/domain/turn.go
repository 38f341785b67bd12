package domain

// ErrorKind classifies turn failures surfaced to the caller. Messages to
// users stay generic; the kind is what clients branch on.
type ErrorKind string

const (
	ErrorKindInvalidTransition ErrorKind = "INVALID_TRANSITION"
	ErrorKindStaleSession      ErrorKind = "STALE_SESSION"
	ErrorKindNotFound          ErrorKind = "NOT_FOUND"
	ErrorKindInternal          ErrorKind = "INTERNAL"
)

// TurnInput is one pre-processed conversational turn. Intent, confidence
// and entities come from the upstream NLU layer; the core never sees model
// internals.
type TurnInput struct {
	SessionID    string            `json:"session_id"`
	RawUtterance string            `json:"raw_utterance,omitempty"`
	Intent       Intent            `json:"intent"`
	Confidence   float64           `json:"confidence"`
	Entities     map[string]string `json:"extracted_entities,omitempty"`
	TurnSeq      int               `json:"turn_sequence"`
}

// TurnOutput is the result of one processed turn.
type TurnOutput struct {
	SessionID    string    `json:"session_id"`
	NextState    State     `json:"next_state"`
	UserPrompt   string    `json:"user_prompt,omitempty"`
	Candidates   []string  `json:"candidates,omitempty"`
	EscalationID string    `json:"escalation_id,omitempty"`
	OrderID      string    `json:"order_id,omitempty"`
	Error        ErrorKind `json:"error,omitempty"`
}
