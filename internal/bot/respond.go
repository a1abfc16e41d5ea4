package bot

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Responder is the subset of *discordgo.Session used by the reply helpers.
// Tests substitute a recorder.
type Responder interface {
	InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(i *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// RespondEphemeral sends an ephemeral text response to an interaction.
func RespondEphemeral(s Responder, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Warn("bot: send ephemeral response", "error", err)
	}
}

// RespondError sends a formatted error response (ephemeral).
func RespondError(s Responder, i *discordgo.InteractionCreate, err error) {
	RespondEphemeral(s, i, fmt.Sprintf("Error: %v", err))
}

// DeferReply sends a deferred response for long-running commands.
func DeferReply(s Responder, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Warn("bot: defer reply", "error", err)
	}
}

// FollowUp sends a follow-up message after a deferred response.
func FollowUp(s Responder, i *discordgo.InteractionCreate, content string) {
	_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		slog.Warn("bot: send follow-up", "error", err)
	}
}
