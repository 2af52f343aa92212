package assistant

import (
	"context"
	"encoding/base64"
	"fmt"
)

type ReplyKind string

const (
	ReplyText  ReplyKind = "text"
	ReplyMedia ReplyKind = "media"
)

// Reply is the only thing the pipeline hands to delivery. Content is the text
// body or a base64 PNG; Caption is only used for media.
type Reply struct {
	Kind    ReplyKind `json:"type"`
	Content string    `json:"content"`
	Caption string    `json:"caption,omitempty"`
}

func TextReply(body string) Reply {
	return Reply{Kind: ReplyText, Content: body}
}

func MediaReply(imageBase64, caption string) Reply {
	return Reply{Kind: ReplyMedia, Content: imageBase64, Caption: caption}
}

// Sender delivers replies to a messaging channel.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
	SendMedia(ctx context.Context, to string, image []byte, caption string) error
}

// Deliver routes r to the matching Sender method.
func Deliver(ctx context.Context, s Sender, to string, r Reply) error {
	switch r.Kind {
	case ReplyText:
		return s.SendText(ctx, to, r.Content)
	case ReplyMedia:
		img, err := base64.StdEncoding.DecodeString(r.Content)
		if err != nil {
			return fmt.Errorf("decode media reply: %w", err)
		}
		return s.SendMedia(ctx, to, img, r.Caption)
	default:
		return fmt.Errorf("unknown reply kind %q", r.Kind)
	}
}
