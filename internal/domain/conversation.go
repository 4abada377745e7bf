package domain

import "encoding/json"

// Message is one entry of the chat transcript. Messages are immutable once appended.
type Message struct {
	ID             MessageID       `json:"id"`
	Text           string          `json:"text"`
	Sender         Sender          `json:"sender"`
	CreatedAt      Timestamp       `json:"createdAt"`
	FunctionCalled string          `json:"functionCalled,omitempty"`
	FunctionResult *FunctionResult `json:"functionResult,omitempty"`
	ChartData      *ChartSpec      `json:"chartData,omitempty"`
}

// ConversationTurn is one provider-issued content block, thought signatures
// included. Its bytes are stored and forwarded as-is and never decoded here.
type ConversationTurn json.RawMessage

func (t ConversationTurn) MarshalJSON() ([]byte, error) {
	if len(t) == 0 {
		return []byte("null"), nil
	}
	return t, nil
}

func (t *ConversationTurn) UnmarshalJSON(data []byte) error {
	*t = append((*t)[:0], data...)
	return nil
}

// ChatSession is the conversation state of one signed-in user.
type ChatSession struct {
	UserID   UserID             `json:"userId"`
	Messages []Message          `json:"messages"`
	Context  []ConversationTurn `json:"context"`
}

// Clone returns a copy whose slices can be appended to without affecting s.
// Turn bytes are shared; they are never mutated in place.
func (s *ChatSession) Clone() *ChatSession {
	if s == nil {
		return nil
	}
	out := &ChatSession{UserID: s.UserID}
	out.Messages = append(make([]Message, 0, len(s.Messages)), s.Messages...)
	out.Context = append(make([]ConversationTurn, 0, len(s.Context)), s.Context...)
	return out
}
