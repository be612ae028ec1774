package models

import "time"

// Role identifies the author of a conversation turn or chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Page is the raw result of fetching a URL.
type Page struct {
	URL         string `json:"url"`
	FinalURL    string `json:"final_url"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	HTML        string `json:"-"`
	FetchMS     int    `json:"fetch_ms"`
}

// Segment is a block of plain text extracted from a page.
type Segment struct {
	Text     string `json:"text"`
	Source   string `json:"source"`
	Title    string `json:"title,omitempty"`
	Strategy string `json:"strategy"`
}

// Chunk is a bounded slice of extracted text, the unit of retrieval.
// Offset is the rune offset of the chunk start inside its segment.
type Chunk struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Index  int    `json:"index"`
	Offset int    `json:"offset"`
}

// Turn is one entry of a session's conversation history.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Message is a single chat-model input message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TurnsToMessages converts conversation history into chat messages, preserving order.
func TurnsToMessages(turns []Turn) []Message {
	out := make([]Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, Message{Role: t.Role, Content: t.Text})
	}
	return out
}

// IngestResponse summarises a successful scrape.
type IngestResponse struct {
	SessionID string        `json:"session_id"`
	URL       string        `json:"url"`
	Chunks    int           `json:"chunks"`
	Strategy  string        `json:"strategy"`
	Took      time.Duration `json:"-"`
}
