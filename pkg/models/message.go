package models

import "time"

// Attachment references a file owned by the external file-storage
// collaborator; this core never touches the blob itself.
type Attachment struct {
	FileID string `json:"fileId"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Mime   string `json:"mime"`
	Size   int64  `json:"size"`
}

// Message is immutable after creation. The stored record carries only the
// encrypted fields; Text is populated on the way out of the store (and on
// the send response) and is never persisted.
type Message struct {
	ID       string `json:"id"`
	ChatID   string `json:"chatId"`
	SenderID string `json:"senderId"`

	CipherText string `json:"cipherText,omitempty"`
	IV         string `json:"iv,omitempty"`
	AuthTag    string `json:"authTag,omitempty"`

	Text string `json:"text,omitempty"`

	// Preview is a generic unencrypted label for chat lists; it must never
	// contain the decrypted body.
	Preview     string       `json:"preview,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}
