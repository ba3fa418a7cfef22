package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Helli-o-s/Social-Media-Submission/internal/submissions"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const embedColor = 0x3B82F6

var (
	// ErrInvalidWebhookURL indicates a URL that is not a Discord webhook.
	ErrInvalidWebhookURL = errors.New("notify: invalid discord webhook url")

	errMissingFeed = errors.New("notify: insert feed required")
)

// Sender executes Discord webhooks.
type Sender interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// InsertFeed streams newly inserted submissions.
type InsertFeed interface {
	SubscribeToInserts(ctx context.Context) (<-chan submissions.Submission, func())
}

// Config describes a moderator notifier.
type Config struct {
	WebhookURL   string
	DashboardURL string
	Feed         InsertFeed
	Sender       Sender
	Logger       *zap.Logger
}

// Notifier posts a Discord message for every new submission.
type Notifier struct {
	webhookID    string
	token        string
	dashboardURL string
	feed         InsertFeed
	sender       Sender
	logger       *zap.Logger
}

// New constructs a Notifier for the configured webhook.
func New(cfg Config) (*Notifier, error) {
	if cfg.Feed == nil {
		return nil, errMissingFeed
	}
	webhookID, token, err := ParseWebhookURL(cfg.WebhookURL)
	if err != nil {
		return nil, err
	}
	sender := cfg.Sender
	if sender == nil {
		session, err := discordgo.New("")
		if err != nil {
			return nil, fmt.Errorf("notify: create discord session: %w", err)
		}
		sender = session
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		webhookID:    webhookID,
		token:        token,
		dashboardURL: strings.TrimSpace(cfg.DashboardURL),
		feed:         cfg.Feed,
		sender:       sender,
		logger:       logger,
	}, nil
}

// ParseWebhookURL extracts the webhook id and token from https://discord.com/api/webhooks/<id>/<token>.
func ParseWebhookURL(raw string) (string, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return "", "", ErrInvalidWebhookURL
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	for index := 0; index+2 < len(segments); index++ {
		if segments[index] == "webhooks" && segments[index+1] != "" && segments[index+2] != "" {
			return segments[index+1], segments[index+2], nil
		}
	}
	return "", "", ErrInvalidWebhookURL
}

// Run posts every inserted submission until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	inserts, unsubscribe := n.feed.SubscribeToInserts(ctx)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case submission, ok := <-inserts:
			if !ok {
				return nil
			}
			if err := n.Notify(submission); err != nil {
				n.logger.Warn("discord notification failed",
					zap.String("operation", "notify.discord"),
					zap.String("submission_id", submission.ID),
					zap.Error(err),
				)
			}
		}
	}
}

// Notify posts one submission.
func (n *Notifier) Notify(submission submissions.Submission) error {
	_, err := n.sender.WebhookExecute(n.webhookID, n.token, false, &discordgo.WebhookParams{
		Username: "Submissions",
		Embeds:   []*discordgo.MessageEmbed{BuildEmbed(submission, n.dashboardURL)},
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{},
		},
	})
	return err
}

// BuildEmbed renders the moderator message for a submission.
func BuildEmbed(submission submissions.Submission, dashboardURL string) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "New submission",
		URL:   dashboardURL,
		Color: embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Name", Value: submission.Name, Inline: true},
			{Name: "Handle", Value: "@" + submission.SocialMediaHandle, Inline: true},
			{Name: "Images", Value: fmt.Sprintf("%d", len(submission.ImageURLs)), Inline: true},
		},
		Timestamp: submission.CreatedAt.UTC().Format(time.RFC3339),
	}
	if len(submission.ImageURLs) > 0 {
		embed.Image = &discordgo.MessageEmbedImage{URL: submission.ImageURLs[0]}
	}
	return embed
}
