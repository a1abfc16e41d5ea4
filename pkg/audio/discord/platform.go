// Package discord adapts Discord voice channels to the [audio.Platform]
// contract using bwmarrin/discordgo. Incoming Opus packets are demuxed per
// speaker and decoded to PCM [audio.AudioFrame] values; synthesized output
// frames are encoded back to Opus and sent to the channel.
//
// The adapter borrows an active *discordgo.Session from the bot layer; it
// never opens or closes the gateway connection itself.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/speakswap/speakswap/pkg/audio"
)

var _ audio.Platform = (*Platform)(nil)

// Platform joins Discord voice channels within a single guild. It is safe
// for concurrent use.
type Platform struct {
	session *discordgo.Session
	guildID string
}

// New creates a Platform bound to the given session and guild.
func New(session *discordgo.Session, guildID string) *Platform {
	return &Platform{
		session: session,
		guildID: guildID,
	}
}

// Connect joins the voice channel identified by channelID and returns the
// live [audio.Connection]. ctx bounds the setup phase only; the returned
// connection lives until its Disconnect is called.
func (p *Platform) Connect(ctx context.Context, channelID string) (audio.Connection, error) {
	// mute=false so we can speak, deaf=false so we receive participant audio.
	vc, err := p.session.ChannelVoiceJoin(p.guildID, channelID, false, false)
	if err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}

	conn, err := newConnection(vc, p.session, p.guildID)
	if err != nil {
		_ = vc.Disconnect()
		return nil, fmt.Errorf("discord: create connection: %w", err)
	}
	return conn, nil
}
