package models

// Notification is the payload sent to the notifications service. Delivery
// is fire-and-forget; a failed send never fails the calling operation.
type Notification struct {
	RecipientID string `json:"recipient_id"`
	SenderID    string `json:"sender_id,omitempty"`
	Message     string `json:"message"`
	Type        string `json:"type"`
	RelatedID   string `json:"related_id,omitempty"`
}
