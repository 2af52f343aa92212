package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Client sends messages through the WhatsApp Cloud API of one business
// phone number.
type Client struct {
	httpClient *http.Client
	baseAPI    string
	log        *zap.Logger
}

type Config struct {
	BaseURL       string
	APIVersion    string
	PhoneNumberID string
	AccessToken   string
	Timeout       time.Duration
}

// NewClient builds a client whose requests carry the access token as a
// bearer token.
func NewClient(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = timeout
	return &Client{
		httpClient: httpClient,
		baseAPI:    fmt.Sprintf("%s/%s/%s", strings.TrimRight(cfg.BaseURL, "/"), cfg.APIVersion, cfg.PhoneNumberID),
		log:        log,
	}
}

// APIError is the error envelope returned by the Graph API.
type APIError struct {
	Status  int
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api: status %d: %s (type=%s code=%d)", e.Status, e.Message, e.Type, e.Code)
}

type textBody struct {
	Body string `json:"body"`
}

type imageBody struct {
	ID      string `json:"id"`
	Caption string `json:"caption,omitempty"`
}

type outboundMessage struct {
	MessagingProduct string     `json:"messaging_product"`
	RecipientType    string     `json:"recipient_type"`
	To               string     `json:"to"`
	Type             string     `json:"type"`
	Text             *textBody  `json:"text,omitempty"`
	Image            *imageBody `json:"image,omitempty"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type uploadResponse struct {
	ID string `json:"id"`
}

func (c *Client) SendText(ctx context.Context, to, body string) error {
	return c.send(ctx, outboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &textBody{Body: body},
	})
}

// SendMedia uploads a PNG and sends it as an image message.
func (c *Client) SendMedia(ctx context.Context, to string, image []byte, caption string) error {
	mediaID, err := c.UploadMedia(ctx, image, "chart.png", "image/png")
	if err != nil {
		return err
	}
	return c.send(ctx, outboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "image",
		Image:            &imageBody{ID: mediaID, Caption: caption},
	})
}

// UploadMedia stores a file with the Graph API and returns its media id.
func (c *Client) UploadMedia(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("messaging_product", "whatsapp"); err != nil {
		return "", err
	}
	if err := mw.WriteField("type", contentType); err != nil {
		return "", err
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	var out uploadResponse
	if err := c.do(ctx, "/media", mw.FormDataContentType(), &buf, &out); err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("upload media: response carried no media id")
	}
	return out.ID, nil
}

func (c *Client) send(ctx context.Context, msg outboundMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var out sendResponse
	if err := c.do(ctx, "/messages", "application/json", bytes.NewReader(b), &out); err != nil {
		return fmt.Errorf("send %s message: %w", msg.Type, err)
	}
	if len(out.Messages) > 0 {
		c.log.Debug("whatsapp message sent", zap.String("type", msg.Type), zap.String("wamid", out.Messages[0].ID))
	}
	return nil
}

func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseAPI+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil && envelope.Error != nil {
			envelope.Error.Status = resp.StatusCode
			return envelope.Error
		}
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(b))}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
