package config

import "os"

// Credentials holds the enumerated secrets read from the environment.
// Absence of a source's full set disables that source for the run; it is
// never a fatal configuration error.
type Credentials struct {
	RedditUserAgent   string
	BlueskyIdentifier string
	BlueskyPassword   string
	DiscordToken      string
}

const (
	EnvRedditUserAgent   = "UNIFEED_REDDIT_USER_AGENT"
	EnvBlueskyIdentifier = "UNIFEED_BLUESKY_IDENTIFIER"
	EnvBlueskyPassword   = "UNIFEED_BLUESKY_PASSWORD"
	EnvDiscordToken      = "UNIFEED_DISCORD_TOKEN"
)

func LoadCredentials() Credentials {
	return Credentials{
		RedditUserAgent:   os.Getenv(EnvRedditUserAgent),
		BlueskyIdentifier: os.Getenv(EnvBlueskyIdentifier),
		BlueskyPassword:   os.Getenv(EnvBlueskyPassword),
		DiscordToken:      os.Getenv(EnvDiscordToken),
	}
}
