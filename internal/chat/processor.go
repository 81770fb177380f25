package chat

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/bhieu79/Torilab-backend-test/internal/llm"
	"github.com/bhieu79/Torilab-backend-test/internal/media"
	"github.com/bhieu79/Torilab-backend-test/internal/store"
)

// Static reply assets served from the media root.
const (
	staticVoiceReplyPath = "/media/static_replies/reply.mp3"
	staticVoiceReplyName = "reply.mp3"
	staticVoiceReplyMime = "audio/mpeg"

	staticImageReplyPath = "/media/static_replies/reply.png"
	staticImageReplyName = "reply.png"
	staticImageReplyMime = "image/png"
)

// defaultStatusMessage is persisted for accepted messages without a
// rejection.
const defaultStatusMessage = "Message accepted"

// Processor runs a validated message through persistence and reply
// generation. Every reply is persisted before it is emitted.
type Processor struct {
	store   store.Store
	media   media.Store
	llm     llm.Client
	logger  *slog.Logger
	metrics *Metrics

	// injectable for tests
	sleep     func(time.Duration)
	randFloat func() float64
}

// NewProcessor creates a Processor.
func NewProcessor(st store.Store, mediaStore media.Store, llmClient llm.Client, logger *slog.Logger, metrics *Metrics) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:     st,
		media:     mediaStore,
		llm:       llmClient,
		logger:    logger,
		metrics:   metrics,
		sleep:     time.Sleep,
		randFloat: rand.Float64,
	}
}

// Process handles one message end to end and returns the frames to send
// back. Failures collapse into a single synthetic reply frame so the
// client always hears back.
func (p *Processor) Process(ctx context.Context, msg *Message) []Envelope {
	replies, err := p.process(ctx, msg)
	if err != nil {
		p.logger.Error("error processing message",
			slog.String("client_id", msg.ClientID),
			slog.String("type", string(msg.Type)),
			slog.String("error", err.Error()))
		return []Envelope{{
			Type: FrameMessage,
			Data: ReplyData{
				Message:   fmt.Sprintf("Error processing message: %s", err.Error()),
				ReplyType: ReplyText,
			},
		}}
	}
	return replies
}

func (p *Processor) process(ctx context.Context, msg *Message) ([]Envelope, error) {
	if p.metrics != nil {
		p.metrics.IncMessagesTotal(string(msg.Type), msg.IsAccepted)
	}

	// Policy rejections are persisted for the history record, then
	// answered with the rejection text alone.
	if !msg.IsAccepted {
		if _, err := p.store.InsertMessage(ctx, recordFor(msg, msg.Content, msg.StatusMessage)); err != nil {
			return nil, err
		}
		return []Envelope{{
			Type: FrameMessage,
			Data: ReplyData{Message: msg.StatusMessage, ReplyType: ReplyText},
		}}, nil
	}

	contentToSave := msg.Content
	if msg.Type.IsMedia() {
		raw, err := msg.Payload.Bytes()
		if err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", msg.Type, err)
		}
		if len(raw) == 0 {
			return nil, fmt.Errorf("Binary content is required for %s message", msg.Type)
		}
		path, err := p.media.Save(ctx, media.Payload{Raw: raw}, string(msg.Type), msg.Filename)
		if err != nil {
			return nil, fmt.Errorf("save %s file: %w", msg.Type, err)
		}
		contentToSave = path
	}

	messageID, err := p.store.InsertMessage(ctx, recordFor(msg, contentToSave, defaultStatusMessage))
	if err != nil {
		return nil, err
	}

	p.simulateWork(msg.Type)

	if status := p.llm.Status(); status.RateLimited {
		minutes := int(status.Remaining.Seconds())/60 + 1
		content := fmt.Sprintf(
			"System is currently busy. Please try again in %d minutes. (Original message: %s...)",
			minutes, truncate(msg.Content, 30))
		return p.emitReply(ctx, messageID, ReplyData{Content: content, ReplyType: ReplyText})
	}

	textReply := p.textReply(ctx, msg)

	replies, err := p.emitReply(ctx, messageID, ReplyData{Content: textReply, ReplyType: ReplyText})
	if err != nil {
		return nil, err
	}

	// Media messages fan out static replies: a voice clip for all media
	// types, plus an image for image and video.
	if msg.Type.IsMedia() {
		more, err := p.emitReply(ctx, messageID, ReplyData{
			Content:   staticVoiceReplyPath,
			ReplyType: ReplyVoice,
			Filename:  staticVoiceReplyName,
			MimeType:  staticVoiceReplyMime,
		})
		if err != nil {
			return nil, err
		}
		replies = append(replies, more...)

		if msg.Type == MessageImage || msg.Type == MessageVideo {
			more, err = p.emitReply(ctx, messageID, ReplyData{
				Content:   staticImageReplyPath,
				ReplyType: ReplyImage,
				Filename:  staticImageReplyName,
				MimeType:  staticImageReplyMime,
			})
			if err != nil {
				return nil, err
			}
			replies = append(replies, more...)
		}
	}

	return replies, nil
}

// textReply produces the text reply content: the completion API for text
// messages, a canned acknowledgement for media, and fixed fallbacks when
// the API fails or returns nothing.
func (p *Processor) textReply(ctx context.Context, msg *Message) string {
	var content string
	if msg.Type == MessageText {
		prompt := fmt.Sprintf(
			"You are a friendly chat assistant. Please provide a natural and helpful response: \"%s\"",
			msg.Content)
		reply, err := p.llm.Generate(ctx, prompt)
		if err != nil {
			p.logger.Error("completion API error", slog.String("error", err.Error()))
			return fmt.Sprintf(
				"Sorry, I couldn't process your request at the moment. (Received: %s...)",
				truncate(msg.Content, 30))
		}
		content = reply
	} else {
		content = fmt.Sprintf("Received your %s message", msg.Type)
	}

	if content == "" {
		content = fmt.Sprintf("Received your %s message: \"%s...\"", msg.Type, truncate(msg.Content, 50))
	}
	return content
}

// emitReply persists a reply and wraps it in a message frame carrying the
// assigned ID.
func (p *Processor) emitReply(ctx context.Context, messageID int64, data ReplyData) ([]Envelope, error) {
	id, err := p.store.InsertReply(ctx, messageID, data.Content, string(data.ReplyType))
	if err != nil {
		return nil, err
	}
	data.ID = id
	if p.metrics != nil {
		p.metrics.IncRepliesTotal(string(data.ReplyType))
	}
	return []Envelope{{Type: FrameMessage, Data: data}}, nil
}

// simulateWork delays the reply to mimic processing cost: up to a second
// for text, one to two seconds for voice, two to three for image and
// video.
func (p *Processor) simulateWork(messageType MessageType) {
	var base, span time.Duration
	switch messageType {
	case MessageText:
		base, span = 0, time.Second
	case MessageVoice:
		base, span = time.Second, time.Second
	case MessageImage, MessageVideo:
		base, span = 2*time.Second, time.Second
	default:
		return
	}
	p.sleep(base + time.Duration(p.randFloat()*float64(span)))
}

func recordFor(msg *Message, content, status string) *store.MessageRecord {
	return &store.MessageRecord{
		ClientID:        msg.ClientID,
		MessageType:     string(msg.Type),
		Content:         content,
		ClientTimestamp: msg.ClientTimestamp,
		Timezone:        msg.Timezone,
		IsAccepted:      msg.IsAccepted,
		StatusMessage:   status,
	}
}

// truncate returns the first n runes of s.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
