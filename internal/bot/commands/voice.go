package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/speakswap/speakswap/internal/bot"
)

// joinTimeout bounds the voice channel connection attempt.
const joinTimeout = 30 * time.Second

// VoiceCommands holds the dependencies for the /voice command group.
type VoiceCommands struct {
	ctrl    Controller
	perms   *bot.PermissionChecker
	guildID string
}

// NewVoiceCommands creates the command group and registers its handlers.
func NewVoiceCommands(b *bot.Bot, ctrl Controller) *VoiceCommands {
	vc := &VoiceCommands{ctrl: ctrl, perms: b.Permissions(), guildID: b.GuildID()}
	vc.Register(b.Router())
	return vc
}

// Register registers the /voice command group with the router.
func (vc *VoiceCommands) Register(router *bot.CommandRouter) {
	router.RegisterCommand("voice", vc.Definition(), func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		bot.RespondEphemeral(s, i, "Use a subcommand: `/voice join` or `/voice leave`.")
	})
	router.RegisterHandler("voice/join", vc.handleJoin)
	router.RegisterHandler("voice/leave", vc.handleLeave)
}

// Definition returns the ApplicationCommand definition for Discord.
func (vc *VoiceCommands) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "voice",
		Description: "Manage the voice channel connection",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "join",
				Description: "Join your current voice channel",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "leave",
				Description: "Leave the voice channel and end the session",
			},
		},
	}
}

func (vc *VoiceCommands) handleJoin(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !vc.perms.IsAdmin(i) {
		bot.RespondEphemeral(s, i, "You need the admin role to do that.")
		return
	}

	userID := interactionUserID(i)
	vs, err := s.State.VoiceState(vc.guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		bot.RespondEphemeral(s, i, "You must be in a voice channel first.")
		return
	}
	if vc.ctrl.Connected() {
		bot.RespondEphemeral(s, i, "Already connected to a voice channel. Use `/voice leave` first.")
		return
	}

	bot.DeferReply(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()
	if err := vc.ctrl.Join(ctx, vs.ChannelID, i.ChannelID); err != nil {
		bot.FollowUp(s, i, fmt.Sprintf("Failed to join: %v", err))
		return
	}
	bot.FollowUp(s, i, fmt.Sprintf("Joined <#%s>. Start translating with `/translate start`.", vs.ChannelID))
}

func (vc *VoiceCommands) handleLeave(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !vc.perms.IsAdmin(i) {
		bot.RespondEphemeral(s, i, "You need the admin role to do that.")
		return
	}
	if !vc.ctrl.Connected() {
		bot.RespondEphemeral(s, i, "Not connected to a voice channel.")
		return
	}
	if err := vc.ctrl.Leave(); err != nil {
		bot.RespondError(s, i, err)
		return
	}
	bot.RespondEphemeral(s, i, "Left the voice channel.")
}

// interactionUserID extracts the user ID from an interaction, handling both
// guild (Member) and DM (User) contexts.
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
