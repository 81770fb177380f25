package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/bhieu79/Torilab-backend-test/internal/llm"
	"github.com/bhieu79/Torilab-backend-test/internal/media"
	"github.com/bhieu79/Torilab-backend-test/internal/store"
)

// fakeMediaStore records saves and returns deterministic paths.
type fakeMediaStore struct {
	saves   []fakeSave
	saveErr error
}

type fakeSave struct {
	kind     string
	filename string
	size     int
}

func (f *fakeMediaStore) Save(ctx context.Context, content media.Payload, kind, filename string) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	raw, err := content.Bytes()
	if err != nil {
		return "", err
	}
	f.saves = append(f.saves, fakeSave{kind: kind, filename: filename, size: len(raw)})
	return "media/" + kind + "s/" + filename, nil
}

// fakeLLM implements llm.Client with scripted behavior.
type fakeLLM struct {
	reply   string
	err     error
	status  llm.RateLimitStatus
	prompts []string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) Status() llm.RateLimitStatus { return f.status }

func newTestProcessor(st store.Store, ms media.Store, lc llm.Client) *Processor {
	p := NewProcessor(st, ms, lc, slog.Default(), nil)
	p.sleep = func(time.Duration) {}
	p.randFloat = func() float64 { return 0 }
	return p
}

func textMessage(content string) *Message {
	return &Message{
		ClientID:        "alice",
		Type:            MessageText,
		Content:         content,
		ClientTimestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Timezone:        "UTC",
		IsAccepted:      true,
	}
}

func replyData(t *testing.T, env Envelope) ReplyData {
	t.Helper()
	data, ok := env.Data.(ReplyData)
	if !ok {
		t.Fatalf("frame data is %T, want ReplyData", env.Data)
	}
	return data
}

func TestProcessTextMessage(t *testing.T) {
	st := store.NewInMemoryStore()
	lc := &fakeLLM{reply: "Hi there!"}
	p := newTestProcessor(st, &fakeMediaStore{}, lc)

	frames := p.Process(context.Background(), textMessage("hello"))

	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	data := replyData(t, frames[0])
	if data.Content != "Hi there!" {
		t.Errorf("content = %q, want %q", data.Content, "Hi there!")
	}
	if data.ReplyType != ReplyText {
		t.Errorf("reply type = %s, want text", data.ReplyType)
	}
	if data.ID == 0 {
		t.Error("expected persisted reply ID in frame")
	}

	if len(lc.prompts) != 1 {
		t.Fatalf("prompts = %d, want 1", len(lc.prompts))
	}
	want := `You are a friendly chat assistant. Please provide a natural and helpful response: "hello"`
	if lc.prompts[0] != want {
		t.Errorf("prompt = %q, want %q", lc.prompts[0], want)
	}

	messages := st.Messages()
	if len(messages) != 1 {
		t.Fatalf("persisted messages = %d, want 1", len(messages))
	}
	if messages[0].StatusMessage != "Message accepted" {
		t.Errorf("status = %q, want %q", messages[0].StatusMessage, "Message accepted")
	}
	replies := st.Replies()
	if len(replies) != 1 {
		t.Fatalf("persisted replies = %d, want 1", len(replies))
	}
	if replies[0].Content != "Hi there!" {
		t.Errorf("persisted reply = %q", replies[0].Content)
	}
}

func TestProcessRejectedMessagePersisted(t *testing.T) {
	st := store.NewInMemoryStore()
	p := newTestProcessor(st, &fakeMediaStore{}, &fakeLLM{})

	msg := textMessage("late night")
	msg.IsAccepted = false
	msg.StatusMessage = "Text messages are only accepted between 5 AM and midnight"

	frames := p.Process(context.Background(), msg)

	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	data := replyData(t, frames[0])
	if data.Message != msg.StatusMessage {
		t.Errorf("message = %q, want rejection text", data.Message)
	}
	if data.Content != "" {
		t.Errorf("rejection frame should not carry content, got %q", data.Content)
	}

	messages := st.Messages()
	if len(messages) != 1 {
		t.Fatalf("persisted messages = %d, want 1", len(messages))
	}
	if messages[0].IsAccepted {
		t.Error("expected message persisted as rejected")
	}
	if len(st.Replies()) != 0 {
		t.Error("rejected messages get no persisted reply")
	}
}

func TestProcessRateLimited(t *testing.T) {
	st := store.NewInMemoryStore()
	lc := &fakeLLM{status: llm.RateLimitStatus{RateLimited: true, Remaining: 1500 * time.Second}}
	p := newTestProcessor(st, &fakeMediaStore{}, lc)

	frames := p.Process(context.Background(), textMessage("this message is longer than thirty characters total"))

	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	data := replyData(t, frames[0])
	want := "System is currently busy. Please try again in 26 minutes. (Original message: this message is longer than th...)"
	if data.Content != want {
		t.Errorf("content = %q, want %q", data.Content, want)
	}
	if len(lc.prompts) != 0 {
		t.Error("rate-limited path must not call the completion API")
	}
	// The busy reply is still persisted.
	if len(st.Replies()) != 1 {
		t.Errorf("persisted replies = %d, want 1", len(st.Replies()))
	}
}

func TestProcessLLMErrorFallback(t *testing.T) {
	st := store.NewInMemoryStore()
	lc := &fakeLLM{err: errors.New("upstream exploded")}
	p := newTestProcessor(st, &fakeMediaStore{}, lc)

	frames := p.Process(context.Background(), textMessage("hello"))

	data := replyData(t, frames[0])
	want := "Sorry, I couldn't process your request at the moment. (Received: hello...)"
	if data.Content != want {
		t.Errorf("content = %q, want %q", data.Content, want)
	}
}

func TestProcessEmptyLLMReplyFallback(t *testing.T) {
	st := store.NewInMemoryStore()
	p := newTestProcessor(st, &fakeMediaStore{}, &fakeLLM{reply: ""})

	frames := p.Process(context.Background(), textMessage("hello"))

	data := replyData(t, frames[0])
	want := `Received your text message: "hello..."`
	if data.Content != want {
		t.Errorf("content = %q, want %q", data.Content, want)
	}
}

func TestProcessImageFanOut(t *testing.T) {
	st := store.NewInMemoryStore()
	ms := &fakeMediaStore{}
	p := newTestProcessor(st, ms, &fakeLLM{})

	msg := &Message{
		ClientID:        "alice",
		Type:            MessageImage,
		ClientTimestamp: time.Now(),
		Timezone:        "UTC",
		Filename:        "pic.png",
		Payload:         media.Payload{Raw: []byte("pngbytes")},
		IsAccepted:      true,
	}
	frames := p.Process(context.Background(), msg)

	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3 (text, voice, image)", len(frames))
	}

	text := replyData(t, frames[0])
	if text.Content != "Received your image message" {
		t.Errorf("text reply = %q", text.Content)
	}

	voice := replyData(t, frames[1])
	if voice.ReplyType != ReplyVoice {
		t.Errorf("second reply type = %s, want voice", voice.ReplyType)
	}
	if voice.Content != "/media/static_replies/reply.mp3" {
		t.Errorf("voice content = %q", voice.Content)
	}
	if voice.Filename != "reply.mp3" || voice.MimeType != "audio/mpeg" {
		t.Errorf("voice metadata = %q/%q", voice.Filename, voice.MimeType)
	}

	image := replyData(t, frames[2])
	if image.ReplyType != ReplyImage {
		t.Errorf("third reply type = %s, want image", image.ReplyType)
	}
	if image.Content != "/media/static_replies/reply.png" {
		t.Errorf("image content = %q", image.Content)
	}
	if image.Filename != "reply.png" || image.MimeType != "image/png" {
		t.Errorf("image metadata = %q/%q", image.Filename, image.MimeType)
	}

	// The blob went to media storage and the persisted content is the
	// storage path.
	if len(ms.saves) != 1 {
		t.Fatalf("media saves = %d, want 1", len(ms.saves))
	}
	if ms.saves[0].kind != "image" || ms.saves[0].filename != "pic.png" {
		t.Errorf("save = %+v", ms.saves[0])
	}
	messages := st.Messages()
	if messages[0].Content != "media/images/pic.png" {
		t.Errorf("persisted content = %q, want storage path", messages[0].Content)
	}
	if len(st.Replies()) != 3 {
		t.Errorf("persisted replies = %d, want 3", len(st.Replies()))
	}
}

func TestProcessVoiceFanOut(t *testing.T) {
	st := store.NewInMemoryStore()
	p := newTestProcessor(st, &fakeMediaStore{}, &fakeLLM{})

	msg := &Message{
		ClientID:        "alice",
		Type:            MessageVoice,
		ClientTimestamp: time.Now(),
		Timezone:        "UTC",
		Filename:        "note.mp3",
		Payload:         media.Payload{Base64: base64.StdEncoding.EncodeToString([]byte("audio"))},
		IsAccepted:      true,
	}
	frames := p.Process(context.Background(), msg)

	// Voice gets the text acknowledgement plus the voice clip, no image.
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(frames))
	}
	if replyData(t, frames[0]).Content != "Received your voice message" {
		t.Errorf("text reply = %q", replyData(t, frames[0]).Content)
	}
	if replyData(t, frames[1]).ReplyType != ReplyVoice {
		t.Errorf("second reply type = %s, want voice", replyData(t, frames[1]).ReplyType)
	}
}

func TestProcessMediaSaveFailure(t *testing.T) {
	st := store.NewInMemoryStore()
	ms := &fakeMediaStore{saveErr: errors.New("disk full")}
	p := newTestProcessor(st, ms, &fakeLLM{})

	msg := &Message{
		ClientID:        "alice",
		Type:            MessageImage,
		ClientTimestamp: time.Now(),
		Timezone:        "UTC",
		Filename:        "pic.png",
		Payload:         media.Payload{Raw: []byte("x")},
		IsAccepted:      true,
	}
	frames := p.Process(context.Background(), msg)

	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	data := replyData(t, frames[0])
	if !strings.HasPrefix(data.Message, "Error processing message: ") {
		t.Errorf("message = %q, want synthetic error frame", data.Message)
	}
	if len(st.Messages()) != 0 {
		t.Error("failed media save must not persist the message")
	}
}
