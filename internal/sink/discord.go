package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/logrelay/logrelay-go/pkg/logrelay/event"
)

// maxDiscordContent is Discord's message content limit in characters.
const maxDiscordContent = 2000

// MessageSender is the part of *discordgo.Session used by Discord.
type MessageSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordConfig routes events to channels.
type DiscordConfig struct {
	// DefaultChannel receives events whose tag has no route. Empty drops them.
	DefaultChannel string
	// Channels maps a pattern's channel tag to a Discord channel ID.
	Channels map[string]string
	// Interval is the minimum spacing between messages. Zero means one
	// message per second.
	Interval time.Duration
}

// Discord posts events as channel messages. Only user mentions are allowed
// to notify; roles and @everyone/@here never ping.
type Discord struct {
	sender  MessageSender
	cfg     DiscordConfig
	limiter *rate.Limiter
	close   func() error
}

// NewDiscord creates a bot session for token.
func NewDiscord(token string, cfg DiscordConfig) (*Discord, error) {
	if token == "" {
		return nil, errors.New("discord: bot token is required")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discordgo session: %w", err)
	}
	d := NewDiscordWithSender(session, cfg)
	d.close = session.Close
	return d, nil
}

// NewDiscordWithSender uses an existing sender.
func NewDiscordWithSender(sender MessageSender, cfg DiscordConfig) *Discord {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	return &Discord{
		sender:  sender,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// ChannelFor returns the channel ID for ev, or "" when it has no route.
func (d *Discord) ChannelFor(ev event.Event) string {
	if id, ok := d.cfg.Channels[ev.Metadata.Channel]; ok && ev.Metadata.Channel != "" {
		return id
	}
	return d.cfg.DefaultChannel
}

// Deliver sends ev to its routed channel, waiting for the rate limiter.
func (d *Discord) Deliver(ctx context.Context, ev event.Event) error {
	channelID := d.ChannelFor(ev)
	if channelID == "" {
		return nil
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}

	msg := &discordgo.MessageSend{
		Content: formatDiscord(ev),
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers},
		},
	}
	if _, err := d.sender.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send to Discord: %w", err)
	}
	return nil
}

// Close closes the bot session, if Discord owns one.
func (d *Discord) Close() error {
	if d.close == nil {
		return nil
	}
	return d.close()
}

func formatDiscord(ev event.Event) string {
	s := ev.Display
	if ev.Emoji != "" {
		s = ev.Emoji + " " + s
	}
	if ev.Kind == event.SecurityAlert && ev.Metadata.Incident != nil {
		s += fmt.Sprintf("\n`incident %s`", ev.Metadata.Incident.ID)
	}
	if r := []rune(s); len(r) > maxDiscordContent {
		s = string(r[:maxDiscordContent-1]) + "…"
	}
	return s
}
