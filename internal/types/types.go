package types

// WebhookPayload is the body WhatsApp posts to the webhook. Only the fields
// the bot reads are modelled.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

type WebhookChange struct {
	Field string       `json:"field"`
	Value WebhookValue `json:"value"`
}

type WebhookValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Contacts         []WebhookContact `json:"contacts"`
	Messages         []WebhookMessage `json:"messages"`
	// Delivery and read receipts arrive here and carry no messages.
	Statuses []map[string]any `json:"statuses,omitempty"`
}

type WebhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type WebhookMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
}

// InboundText is one text message extracted from a webhook payload.
type InboundText struct {
	MessageID string
	Phone     string
	Name      string
	Body      string
}

// TextMessages returns every text message of the payload with the sender's
// profile name. Non-text messages and status updates are skipped.
func (p WebhookPayload) TextMessages() []InboundText {
	var out []InboundText
	for _, e := range p.Entry {
		for _, ch := range e.Changes {
			names := make(map[string]string, len(ch.Value.Contacts))
			for _, c := range ch.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range ch.Value.Messages {
				if m.Type != "text" || m.Text == nil {
					continue
				}
				out = append(out, InboundText{
					MessageID: m.ID,
					Phone:     m.From,
					Name:      names[m.From],
					Body:      m.Text.Body,
				})
			}
		}
	}
	return out
}

// MessageRequest drives the pipeline synchronously over HTTP.
type MessageRequest struct {
	Phone   string `json:"phone"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
}

type MessageResponse struct {
	MessageID string `json:"messageId"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	Caption   string `json:"caption,omitempty"`
	Error     string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
