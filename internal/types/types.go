package types

import (
	"time"
)

type User struct {
	Id        int       `json:"id"`
	Username  string    `json:"username"`
	Questions []string  `json:"questions,omitempty"`
	Poem      string    `json:"poem,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type Connection struct {
	Id         int       `json:"id"`
	ExternalId string    `json:"external_id"`
	RoomId     string    `json:"room_id"`
	User       User      `json:"user"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

type Message struct {
	Id        int       `json:"id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

type AttemptResult struct {
	Success        bool        `json:"success"`
	CorrectAnswers int         `json:"correct_answers"`
	PitchLevel     string      `json:"pitch_level,omitempty"`
	CrypticMessage string      `json:"cryptic_message"`
	Message        string      `json:"message"`
	Connection     *Connection `json:"connection,omitempty"`
}
