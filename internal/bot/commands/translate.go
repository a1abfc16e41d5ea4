package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/speakswap/speakswap/internal/bot"
	"github.com/speakswap/speakswap/internal/lang"
)

// TranslateCommands holds the dependencies for the /translate command group.
type TranslateCommands struct {
	ctrl  Controller
	perms *bot.PermissionChecker
}

// NewTranslateCommands creates the command group and registers its handlers.
func NewTranslateCommands(b *bot.Bot, ctrl Controller) *TranslateCommands {
	tc := &TranslateCommands{ctrl: ctrl, perms: b.Permissions()}
	tc.Register(b.Router())
	return tc
}

// Register registers the /translate command group with the router.
func (tc *TranslateCommands) Register(router *bot.CommandRouter) {
	router.RegisterCommand("translate", tc.Definition(), func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		bot.RespondEphemeral(s, i, "Use a subcommand, e.g. `/translate start` or `/translate status`.")
	})
	router.RegisterHandler("translate/start", tc.handleStart)
	router.RegisterHandler("translate/stop", tc.handleStop)
	router.RegisterHandler("translate/status", tc.handleStatus)
	router.RegisterHandler("translate/add", tc.handleAdd)
	router.RegisterHandler("translate/language", tc.handleLanguage)
	router.RegisterHandler("translate/threshold", tc.handleThreshold)
}

// languageChoices builds the option choices from the supported set.
func languageChoices() []*discordgo.ApplicationCommandOptionChoice {
	codes := lang.Codes()
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(codes))
	for _, code := range codes {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  lang.Locale(code),
			Value: code,
		})
	}
	return choices
}

// Definition returns the ApplicationCommand definition for Discord.
func (tc *TranslateCommands) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "translate",
		Description: "Control the translation session",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "start",
				Description: "Start translating your speech",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "stop",
				Description: "Stop the translation session for everyone",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "status",
				Description: "Show the current session status",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "add",
				Description: "Add a participant to the session",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionUser,
						Name:        "user",
						Description: "Participant to add",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "language",
						Description: "Language the participant speaks",
						Required:    true,
						Choices:     languageChoices(),
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "language",
				Description: "Set your own language",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "language",
						Description: "Language you speak",
						Required:    true,
						Choices:     languageChoices(),
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "threshold",
				Description: "Adjust the speech detection threshold",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionNumber,
						Name:        "value",
						Description: "Normalized amplitude in (0, 1], default 0.015",
						Required:    true,
					},
				},
			},
		},
	}
}

func (tc *TranslateCommands) handleStart(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !tc.ctrl.Connected() {
		bot.RespondEphemeral(s, i, "Not in a voice channel. Use `/voice join` first.")
		return
	}
	if err := tc.ctrl.StartTranslation(interactionUserID(i)); err != nil {
		bot.RespondError(s, i, err)
		return
	}
	bot.RespondEphemeral(s, i, "Translation started. Your speech will be translated for the other participants.")
}

func (tc *TranslateCommands) handleStop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !tc.perms.IsAdmin(i) {
		bot.RespondEphemeral(s, i, "You need the admin role to do that.")
		return
	}
	tc.ctrl.StopTranslation()
	bot.RespondEphemeral(s, i, "Translation stopped for all participants.")
}

func (tc *TranslateCommands) handleStatus(s *discordgo.Session, i *discordgo.InteractionCreate) {
	bot.RespondEphemeral(s, i, formatStatus(tc.ctrl.Status()))
}

func (tc *TranslateCommands) handleAdd(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !tc.perms.IsAdmin(i) {
		bot.RespondEphemeral(s, i, "You need the admin role to do that.")
		return
	}
	opts := subcommandOptions(i)
	userID := optionUserID(opts, "user")
	language := optionString(opts, "language")
	if userID == "" || language == "" {
		bot.RespondEphemeral(s, i, "Both `user` and `language` are required.")
		return
	}
	if err := tc.ctrl.AddParticipant(userID, language); err != nil {
		bot.RespondError(s, i, err)
		return
	}
	bot.RespondEphemeral(s, i, fmt.Sprintf("Added <@%s> speaking %s.", userID, lang.Locale(language)))
}

func (tc *TranslateCommands) handleLanguage(s *discordgo.Session, i *discordgo.InteractionCreate) {
	language := optionString(subcommandOptions(i), "language")
	if language == "" {
		bot.RespondEphemeral(s, i, "The `language` option is required.")
		return
	}
	if err := tc.ctrl.SetLanguage(interactionUserID(i), language); err != nil {
		bot.RespondError(s, i, err)
		return
	}
	bot.RespondEphemeral(s, i, fmt.Sprintf("Your language is now %s.", lang.Locale(language)))
}

func (tc *TranslateCommands) handleThreshold(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !tc.perms.IsAdmin(i) {
		bot.RespondEphemeral(s, i, "You need the admin role to do that.")
		return
	}
	value, ok := optionFloat(subcommandOptions(i), "value")
	if !ok {
		bot.RespondEphemeral(s, i, "The `value` option is required.")
		return
	}
	if err := tc.ctrl.SetThreshold(value); err != nil {
		bot.RespondError(s, i, err)
		return
	}
	bot.RespondEphemeral(s, i, fmt.Sprintf("Speech threshold set to %.4f.", value))
}

// formatStatus renders a Status snapshot for the ephemeral status reply.
func formatStatus(st Status) string {
	var b strings.Builder
	if !st.Connected {
		b.WriteString("**Voice:** not connected\n")
	} else {
		fmt.Fprintf(&b, "**Voice:** connected to <#%s>\n", st.ChannelID)
	}
	fmt.Fprintf(&b, "**Default languages:** %s → %s\n", st.SourceLang, st.TargetLang)
	fmt.Fprintf(&b, "**Speech threshold:** %.4f\n", st.Threshold)

	if len(st.Participants) == 0 {
		b.WriteString("**Participants:** none")
		return b.String()
	}
	ids := make([]string, 0, len(st.Participants))
	for id := range st.Participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	b.WriteString("**Participants:**")
	for _, id := range ids {
		fmt.Fprintf(&b, "\n- <@%s>: %s", id, st.Participants[id])
	}
	return b.String()
}

// subcommandOptions returns the option list of the invoked subcommand.
func subcommandOptions(i *discordgo.InteractionCreate) []*discordgo.ApplicationCommandInteractionDataOption {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		return nil
	}
	return data.Options[0].Options
}

func optionString(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, o := range opts {
		if o.Name == name && o.Type == discordgo.ApplicationCommandOptionString {
			return o.StringValue()
		}
	}
	return ""
}

func optionUserID(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, o := range opts {
		if o.Name == name && o.Type == discordgo.ApplicationCommandOptionUser {
			if v, ok := o.Value.(string); ok {
				return v
			}
		}
	}
	return ""
}

func optionFloat(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) (float64, bool) {
	for _, o := range opts {
		if o.Name == name && o.Type == discordgo.ApplicationCommandOptionNumber {
			if v, ok := o.Value.(float64); ok {
				return v, true
			}
		}
	}
	return 0, false
}
