// Command speakswap is the main entry point for the SpeakSwap translation
// relay server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/speakswap/speakswap/internal/app"
	"github.com/speakswap/speakswap/internal/bot"
	"github.com/speakswap/speakswap/internal/bot/commands"
	"github.com/speakswap/speakswap/internal/config"
	"github.com/speakswap/speakswap/internal/observe"
	"github.com/speakswap/speakswap/internal/resilience"
	"github.com/speakswap/speakswap/pkg/provider/stt"
	sttazure "github.com/speakswap/speakswap/pkg/provider/stt/azure"
	"github.com/speakswap/speakswap/pkg/provider/stt/whisper"
	"github.com/speakswap/speakswap/pkg/provider/translate"
	trazure "github.com/speakswap/speakswap/pkg/provider/translate/azure"
	tropenai "github.com/speakswap/speakswap/pkg/provider/translate/openai"
	"github.com/speakswap/speakswap/pkg/provider/tts"
	ttsazure "github.com/speakswap/speakswap/pkg/provider/tts/azure"
	"github.com/speakswap/speakswap/pkg/provider/tts/coqui"
	"github.com/speakswap/speakswap/pkg/provider/tts/elevenlabs"
	"github.com/speakswap/speakswap/pkg/provider/vad"
	"github.com/speakswap/speakswap/pkg/provider/vad/energy"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "speakswap: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "speakswap: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("speakswap starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "speakswap",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Discord bot (optional) ────────────────────────────────────────────────
	var discordBot *bot.Bot
	if cfg.Discord.Token != "" {
		discordBot, err = bot.New(ctx, bot.Config{
			Token:       cfg.Discord.Token,
			GuildID:     cfg.Discord.GuildID,
			AdminRoleID: cfg.Discord.AdminRoleID,
		})
		if err != nil {
			slog.Error("failed to create Discord bot", "err", err)
			return 1
		}
		// The bot's voice transport replaces any registry-built platform.
		providers.Audio = discordBot.Platform()
		slog.Info("discord bot connected", "guild_id", cfg.Discord.GuildID)
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithMetrics(metrics),
		app.WithLogLevel(logLevel),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Slash commands ────────────────────────────────────────────────────────
	if discordBot != nil {
		ctrl := application.SessionManager()
		ctrl.SetNotifier(discordBot.SendMessage)
		commands.NewVoiceCommands(discordBot, ctrl)
		commands.NewTranslateCommands(discordBot, ctrl)

		go func() {
			if err := discordBot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("discord bot error", "err", err)
			}
		}()
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		application.ApplyReload(config.Diff(old, new))
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if discordBot != nil {
		if err := discordBot.Close(); err != nil {
			slog.Warn("discord bot close error", "err", err)
		}
	}

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("azure", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []sttazure.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttazure.WithEndpoint(entry.BaseURL))
		}
		return sttazure.New(entry.APIKey, entry.Region, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		return whisper.NewNative(modelPath)
	})

	// ── Translate ─────────────────────────────────────────────────────────────

	reg.RegisterTranslate("azure", func(entry config.ProviderEntry) (translate.Provider, error) {
		var opts []trazure.Option
		if entry.BaseURL != "" {
			opts = append(opts, trazure.WithEndpoint(entry.BaseURL))
		}
		return trazure.New(entry.APIKey, entry.Region, opts...)
	})

	reg.RegisterTranslate("openai", func(entry config.ProviderEntry) (translate.Provider, error) {
		var opts []tropenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, tropenai.WithBaseURL(entry.BaseURL))
		}
		return tropenai.New(entry.APIKey, entry.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("azure", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttsazure.Option
		if entry.BaseURL != "" {
			opts = append(opts, ttsazure.WithEndpoint(entry.BaseURL))
		}
		return ttsazure.New(entry.APIKey, entry.Region, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if voice := optString(entry.Options, "default_voice"); voice != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(voice))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if speaker := optString(entry.Options, "default_speaker"); speaker != "" {
			opts = append(opts, coqui.WithDefaultSpeaker(speaker))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(_ config.ProviderEntry) (vad.Engine, error) {
		return energy.New(), nil
	})
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct. Provider entries carrying a
// fallback block are wrapped in a circuit-breaker failover group.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if entry := cfg.Providers.STT; entry.Name != "" {
		p, err := reg.CreateSTT(entry)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
		}
		if fb := entry.Fallback; fb != nil {
			fbp, err := reg.CreateSTT(*fb)
			if err != nil {
				return nil, fmt.Errorf("create stt fallback %q: %w", fb.Name, err)
			}
			group := resilience.NewSTTFallback(p, entry.Name, resilience.FallbackConfig{})
			group.AddFallback(fb.Name, fbp)
			ps.STT = group
			slog.Info("provider created", "kind", "stt", "name", entry.Name, "fallback", fb.Name)
		} else {
			ps.STT = p
			slog.Info("provider created", "kind", "stt", "name", entry.Name)
		}
	}

	if entry := cfg.Providers.Translate; entry.Name != "" {
		p, err := reg.CreateTranslate(entry)
		if err != nil {
			return nil, fmt.Errorf("create translate provider %q: %w", entry.Name, err)
		}
		if fb := entry.Fallback; fb != nil {
			fbp, err := reg.CreateTranslate(*fb)
			if err != nil {
				return nil, fmt.Errorf("create translate fallback %q: %w", fb.Name, err)
			}
			group := resilience.NewTranslateFallback(p, entry.Name, resilience.FallbackConfig{})
			group.AddFallback(fb.Name, fbp)
			ps.Translate = group
			slog.Info("provider created", "kind", "translate", "name", entry.Name, "fallback", fb.Name)
		} else {
			ps.Translate = p
			slog.Info("provider created", "kind", "translate", "name", entry.Name)
		}
	}

	if entry := cfg.Providers.TTS; entry.Name != "" {
		p, err := reg.CreateTTS(entry)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
		}
		if fb := entry.Fallback; fb != nil {
			fbp, err := reg.CreateTTS(*fb)
			if err != nil {
				return nil, fmt.Errorf("create tts fallback %q: %w", fb.Name, err)
			}
			group := resilience.NewTTSFallback(p, entry.Name, resilience.FallbackConfig{})
			group.AddFallback(fb.Name, fbp)
			ps.TTS = group
			slog.Info("provider created", "kind", "tts", "name", entry.Name, "fallback", fb.Name)
		} else {
			ps.TTS = p
			slog.Info("provider created", "kind", "tts", "name", entry.Name)
		}
	}

	if entry := cfg.Providers.VAD; entry.Name != "" {
		p, err := reg.CreateVAD(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("vad provider not registered — using built-in energy detector", "name", entry.Name)
		} else if err != nil {
			return nil, fmt.Errorf("create vad provider %q: %w", entry.Name, err)
		} else {
			ps.VAD = p
			slog.Info("provider created", "kind", "vad", "name", entry.Name)
		}
	}

	if entry := cfg.Providers.Audio; entry.Name != "" {
		p, err := reg.CreateAudio(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("audio provider supplied by the Discord bot", "name", entry.Name)
		} else if err != nil {
			return nil, fmt.Errorf("create audio provider %q: %w", entry.Name, err)
		} else {
			ps.Audio = p
			slog.Info("provider created", "kind", "audio", "name", entry.Name)
		}
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        SpeakSwap — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("Translate", cfg.Providers.Translate.Name, cfg.Providers.Translate.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("VAD", cfg.Providers.VAD.Name, "")
	if cfg.Discord.Token != "" {
		fmt.Printf("║  Discord      : %-22s ║\n", "connected")
	} else {
		fmt.Printf("║  Discord      : %-22s ║\n", "(disabled)")
	}
	fmt.Printf("║  Relay mode   : %-22s ║\n", relayModeLabel(cfg))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr  : %-22s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func relayModeLabel(cfg *config.Config) string {
	if cfg.Relay.Mode == config.PipelineRemote {
		return "remote + local fallback"
	}
	return "local"
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 22 {
		value = value[:19] + "…"
	}
	fmt.Printf("║  %-9s    : %-22s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
