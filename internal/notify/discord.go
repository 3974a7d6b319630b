package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"

	"unifeed/internal/feed"
)

// DiscordNotifier posts a run summary embed to a channel after each
// publish. Construction requires both a bot token and a channel id;
// callers treat an unconfigured notifier as absent rather than erroring.
type DiscordNotifier struct {
	session   *discordgo.Session
	channelID string
}

func NewDiscordNotifier(token, channelID string) (*DiscordNotifier, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	return &DiscordNotifier{
		session:   session,
		channelID: channelID,
	}, nil
}

func (n *DiscordNotifier) Notify(ctx context.Context, env *feed.Envelope) error {
	embed := &discordgo.MessageEmbed{
		Title:       "Feed snapshot published",
		Description: fmt.Sprintf("%d items across %d sources", len(env.Items), len(env.SourceStatuses)),
		Color:       0x5865F2,
		Timestamp:   env.GeneratedAt.Format("2006-01-02T15:04:05Z07:00"),
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:  "Sources",
				Value: formatStatuses(env.SourceStatuses),
			},
		},
	}

	_, err := n.session.ChannelMessageSendEmbed(n.channelID, embed, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to send run summary: %w", err)
	}

	slog.Debug("Sent run summary", "channel", n.channelID, "items", len(env.Items))
	return nil
}

func formatStatuses(statuses map[string]feed.SourceStatus) string {
	names := make([]string, 0, len(statuses))
	for name := range statuses {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		status := statuses[name]
		switch {
		case !status.Enabled:
			lines = append(lines, fmt.Sprintf("%s: disabled (%s)", name, status.Reason))
		case status.Succeeded:
			lines = append(lines, fmt.Sprintf("%s: %d items", name, status.ItemCount))
		default:
			lines = append(lines, fmt.Sprintf("%s: failed (%s)", name, status.Error))
		}
	}

	if len(lines) == 0 {
		return "none configured"
	}
	return strings.Join(lines, "\n")
}
