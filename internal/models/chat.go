package models

// ChatRole is the author of a transcript message.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatKind tags the variant of an assistant message. A user message is always
// conversational.
type ChatKind string

const (
	// ChatKindConversational is plain text with no attached report.
	ChatKindConversational ChatKind = "conversational"
	// ChatKindEditProposal carries a full candidate replacement report that
	// stays inert until explicitly applied.
	ChatKindEditProposal ChatKind = "edit_proposal"
)

// ChatMessage is one entry in an edit-session transcript.
type ChatMessage struct {
	ID   string   `json:"id"`
	Role ChatRole `json:"role"`
	Kind ChatKind `json:"kind"`
	Text string   `json:"text"`
	// CandidateReport is present only on edit proposals.
	CandidateReport *ResearchReport `json:"candidateReport,omitempty"`
}
