package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Helli-o-s/Social-Media-Submission/internal/realtime"
	"github.com/Helli-o-s/Social-Media-Submission/internal/submissions"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingSender struct {
	mu     sync.Mutex
	calls  []*discordgo.WebhookParams
	ids    []string
	err    error
	notify chan struct{}
}

func (r *recordingSender) WebhookExecute(webhookID, token string, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	r.mu.Lock()
	r.calls = append(r.calls, data)
	r.ids = append(r.ids, webhookID+"/"+token)
	r.mu.Unlock()
	if r.notify != nil {
		r.notify <- struct{}{}
	}
	return nil, r.err
}

type dispatcherFeed struct {
	dispatcher *realtime.Dispatcher[submissions.Submission]
}

func (f dispatcherFeed) SubscribeToInserts(ctx context.Context) (<-chan submissions.Submission, func()) {
	return f.dispatcher.Subscribe(ctx, submissions.InsertTopic)
}

const testWebhookURL = "https://discord.com/api/webhooks/123456/abc-token"

func TestParseWebhookURL(t *testing.T) {
	id, token, err := ParseWebhookURL(testWebhookURL)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if id != "123456" || token != "abc-token" {
		t.Fatalf("unexpected id/token %s/%s", id, token)
	}
	for _, invalid := range []string{"", "not a url", "https://discord.com/api/channels/1/2", "https://discord.com/api/webhooks/123"} {
		if _, _, err := ParseWebhookURL(invalid); !errors.Is(err, ErrInvalidWebhookURL) {
			t.Fatalf("expected invalid url error for %q, got %v", invalid, err)
		}
	}
}

func TestBuildEmbedDescribesSubmission(t *testing.T) {
	embed := BuildEmbed(submissions.Submission{
		ID:                "s-1",
		Name:              "Ada",
		SocialMediaHandle: "ada_codes",
		ImageURLs:         []string{"https://cdn.example.com/a.png", "https://cdn.example.com/b.png"},
		CreatedAt:         time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC),
	}, "https://example.com/admin")

	if embed.Fields[1].Value != "@ada_codes" {
		t.Fatalf("expected handle with @, got %q", embed.Fields[1].Value)
	}
	if embed.Fields[2].Value != "2" {
		t.Fatalf("expected image count, got %q", embed.Fields[2].Value)
	}
	if embed.Image == nil || embed.Image.URL != "https://cdn.example.com/a.png" {
		t.Fatalf("expected first image preview")
	}
	if embed.Timestamp != "2024-09-01T12:00:00Z" {
		t.Fatalf("unexpected timestamp %q", embed.Timestamp)
	}
	if embed.URL != "https://example.com/admin" {
		t.Fatalf("unexpected url %q", embed.URL)
	}
}

func TestRunPostsInsertedSubmissions(t *testing.T) {
	dispatcher := realtime.NewDispatcher[submissions.Submission](4)
	sender := &recordingSender{notify: make(chan struct{}, 1), err: errors.New("rate limited")}
	core, logs := observer.New(zapcore.WarnLevel)
	notifier, err := New(Config{
		WebhookURL: testWebhookURL,
		Feed:       dispatcherFeed{dispatcher: dispatcher},
		Sender:     sender,
		Logger:     zap.New(core),
	})
	if err != nil {
		t.Fatalf("failed to construct notifier: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- notifier.Run(ctx)
	}()

	deadline := time.Now().Add(time.Second)
	for dispatcher.SubscriberCount(submissions.InsertTopic) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("notifier never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	dispatcher.Publish(submissions.InsertTopic, submissions.Submission{ID: "s-1", Name: "Ada", SocialMediaHandle: "ada"})
	select {
	case <-sender.notify:
	case <-time.After(time.Second):
		t.Fatalf("expected webhook call")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.calls) != 1 || sender.ids[0] != "123456/abc-token" {
		t.Fatalf("unexpected webhook calls %v", sender.ids)
	}
	if logs.FilterMessage("discord notification failed").Len() != 1 {
		t.Fatalf("expected failed delivery to be logged")
	}
}
