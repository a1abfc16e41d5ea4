package bot

import (
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// HandlerFunc is the signature for slash command handlers.
type HandlerFunc func(s *discordgo.Session, i *discordgo.InteractionCreate)

// commandEntry stores a command definition along with its handler.
type commandEntry struct {
	command *discordgo.ApplicationCommand
	handler HandlerFunc
}

// CommandRouter dispatches Discord interactions to registered handlers.
// Keys are "command" or "command/subcommand" (e.g., "translate/start").
type CommandRouter struct {
	mu       sync.RWMutex
	commands map[string]commandEntry
}

// NewCommandRouter creates an empty router.
func NewCommandRouter() *CommandRouter {
	return &CommandRouter{commands: make(map[string]commandEntry)}
}

// RegisterCommand registers a handler together with its top-level command
// definition. Only top-level commands are registered with Discord;
// subcommands are nested inside the definition.
func (r *CommandRouter) RegisterCommand(key string, cmd *discordgo.ApplicationCommand, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[key] = commandEntry{command: cmd, handler: handler}
}

// RegisterHandler registers a subcommand handler when the parent command is
// already registered.
func (r *CommandRouter) RegisterHandler(key string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[key] = commandEntry{handler: handler}
}

// ApplicationCommands returns the deduplicated list of top-level command
// definitions for registration with the Discord API.
func (r *CommandRouter) ApplicationCommands() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var cmds []*discordgo.ApplicationCommand
	for _, entry := range r.commands {
		if entry.command != nil && !seen[entry.command.Name] {
			seen[entry.command.Name] = true
			cmds = append(cmds, entry.command)
		}
	}
	return cmds
}

// Handle dispatches an interaction to the appropriate handler.
func (r *CommandRouter) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		slog.Debug("bot: ignoring interaction", "type", i.Type)
		return
	}

	data := i.ApplicationCommandData()
	key := interactionKey(data)

	r.mu.RLock()
	entry, ok := r.commands[key]
	r.mu.RUnlock()

	if !ok {
		slog.Warn("bot: unknown command", "key", key)
		RespondEphemeral(s, i, "Unknown command.")
		return
	}
	entry.handler(s, i)
}

// interactionKey builds a router key from an ApplicationCommand interaction.
func interactionKey(data discordgo.ApplicationCommandInteractionData) string {
	key := data.Name
	if len(data.Options) > 0 && data.Options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		key += "/" + data.Options[0].Name
	}
	return key
}
