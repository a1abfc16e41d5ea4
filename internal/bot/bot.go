// Package bot provides the Discord layer for SpeakSwap. It owns the
// discordgo.Session lifecycle, routes slash command interactions to
// registered handlers, and checks the admin role on privileged commands.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/speakswap/speakswap/pkg/audio"
	discordaudio "github.com/speakswap/speakswap/pkg/audio/discord"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token.
	Token string

	// GuildID is the target guild (single-guild deployment).
	GuildID string

	// AdminRoleID is the role allowed to run privileged commands. Empty
	// means everyone.
	AdminRoleID string
}

// Bot owns the Discord gateway connection and routes interactions to
// registered command handlers.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	platform  *discordaudio.Platform
	router    *CommandRouter
	perms     *PermissionChecker
	guildID   string
	commands  []*discordgo.ApplicationCommand
	closeOnce sync.Once
}

// New creates a Bot, connects to Discord, and registers the interaction
// handler.
func New(_ context.Context, cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("bot: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuilds

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("bot: open session: %w", err)
	}

	b := &Bot{
		session:  session,
		platform: discordaudio.New(session, cfg.GuildID),
		router:   NewCommandRouter(),
		perms:    NewPermissionChecker(cfg.AdminRoleID),
		guildID:  cfg.GuildID,
	}

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})

	return b, nil
}

// Platform returns the audio.Platform for voice channel connections.
func (b *Bot) Platform() audio.Platform {
	return b.platform
}

// GuildID returns the target guild ID.
func (b *Bot) GuildID() string {
	return b.guildID
}

// Session returns the underlying discordgo session.
func (b *Bot) Session() *discordgo.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// Permissions returns the permission checker.
func (b *Bot) Permissions() *PermissionChecker {
	return b.perms
}

// SendMessage posts a plain text message to a channel. Used for translation
// notices; failures are logged, not returned, because a dropped notice must
// not fail the pipeline.
func (b *Bot) SendMessage(channelID, content string) {
	b.mu.RLock()
	session := b.session
	b.mu.RUnlock()
	if session == nil || channelID == "" || content == "" {
		return
	}
	if _, err := session.ChannelMessageSend(channelID, content); err != nil {
		slog.Warn("bot: send message", "channel", channelID, "error", err)
	}
}

// Run registers slash commands with the Discord API and blocks until ctx is
// cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.RLock()
	appID := b.session.State.User.ID
	b.mu.RUnlock()

	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
		if err != nil {
			return fmt.Errorf("bot: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("bot: commands registered", "count", len(registered))
	}

	<-ctx.Done()
	return ctx.Err()
}

// Close disconnects from Discord and unregisters commands. Safe to call more
// than once.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.session != nil && len(b.commands) > 0 {
			appID := b.session.State.User.ID
			for _, cmd := range b.commands {
				if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
					slog.Warn("bot: delete command", "name", cmd.Name, "error", err)
				}
			}
		}
		if b.session != nil {
			if err := b.session.Close(); err != nil {
				closeErr = fmt.Errorf("bot: close session: %w", err)
			}
		}
		slog.Info("bot: closed")
	})
	return closeErr
}
