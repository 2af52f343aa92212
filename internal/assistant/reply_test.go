package assistant

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendText(ctx context.Context, to, body string) error {
	return m.Called(ctx, to, body).Error(0)
}

func (m *mockSender) SendMedia(ctx context.Context, to string, image []byte, caption string) error {
	return m.Called(ctx, to, image, caption).Error(0)
}

func TestDeliver_Text(t *testing.T) {
	s := &mockSender{}
	s.On("SendText", mock.Anything, "15550001", "hello").Return(nil)

	require.NoError(t, Deliver(context.Background(), s, "15550001", TextReply("hello")))
	s.AssertExpectations(t)
	s.AssertNotCalled(t, "SendMedia", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeliver_MediaDefaultsCaption(t *testing.T) {
	img := append([]byte(nil), pngMagic...)
	s := &mockSender{}
	s.On("SendMedia", mock.Anything, "15550001", img, "").Return(nil)

	r := Reply{Kind: ReplyMedia, Content: base64.StdEncoding.EncodeToString(img)}
	require.NoError(t, Deliver(context.Background(), s, "15550001", r))
	s.AssertExpectations(t)
	s.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeliver_Errors(t *testing.T) {
	s := &mockSender{}
	assert.Error(t, Deliver(context.Background(), s, "1", Reply{Kind: ReplyMedia, Content: "not base64!"}))
	assert.Error(t, Deliver(context.Background(), s, "1", Reply{Kind: "audio"}))

	s.On("SendText", mock.Anything, "1", "hi").Return(assert.AnError)
	assert.ErrorIs(t, Deliver(context.Background(), s, "1", TextReply("hi")), assert.AnError)
}

func TestReplyConstructors(t *testing.T) {
	assert.Equal(t, Reply{Kind: ReplyText, Content: "x"}, TextReply("x"))
	assert.Equal(t, Reply{Kind: ReplyMedia, Content: "aGk=", Caption: "c"}, MediaReply("aGk=", "c"))
}
