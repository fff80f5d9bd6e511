package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	cli "github.com/urfave/cli/v2"

	"github.com/warden-bot/warden/automod/engine"
	"github.com/warden-bot/warden/discord"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "warden",
		Usage:   "guild moderation daemon",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:     "discord-token",
			Usage:    "bot token for the gateway and REST API",
			Required: true,
			EnvVars:  []string{"WARDEN_DISCORD_TOKEN"},
		},
		&cli.StringFlag{
			Name:     "guild-id",
			Usage:    "the single guild to moderate",
			Required: true,
			EnvVars:  []string{"WARDEN_GUILD_ID"},
		},
		&cli.StringFlag{
			Name:    "log-channel-id",
			Usage:   "channel receiving moderation audit notifications",
			EnvVars: []string{"WARDEN_LOG_CHANNEL_ID"},
		},
		&cli.StringSliceFlag{
			Name:    "ads-channel-ids",
			Usage:   "channels where advertising is allowed",
			EnvVars: []string{"WARDEN_ADS_CHANNEL_IDS"},
		},
		&cli.StringSliceFlag{
			Name:    "protected-channel-ids",
			Usage:   "channels whose deletion triggers the anti-crash ban",
			EnvVars: []string{"WARDEN_PROTECTED_CHANNEL_IDS"},
		},
		&cli.StringSliceFlag{
			Name:    "whitelist-role-ids",
			Usage:   "roles promoted to the veteran tier regardless of tenure",
			EnvVars: []string{"WARDEN_WHITELIST_ROLE_IDS"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics",
			Value:   ":3989",
			EnvVars: []string{"WARDEN_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity (debug, info, warn, error)",
			Value:   "info",
			EnvVars: []string{"WARDEN_LOG_LEVEL"},
		},
	}

	app.Action = runBot
	return app.Run(args)
}

func runBot(cctx *cli.Context) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cctx.String("log-level")),
	}))
	slog.SetDefault(logger)

	session, err := discordgo.New("Bot " + cctx.String("discord-token"))
	if err != nil {
		return err
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent
	session.State.MaxMessageCount = 1000

	cfg := engine.DefaultConfig(cctx.String("guild-id"))
	cfg.AdsChannelIDs = cctx.StringSlice("ads-channel-ids")
	cfg.ProtectedChannelIDs = cctx.StringSlice("protected-channel-ids")

	platform := discord.NewPlatform(session, logger, cctx.String("log-channel-id"))
	eng := engine.New(logger, cfg, platform, &discord.InviteAPI{Session: session})

	bot := discord.NewBot(session, eng, logger, cctx.StringSlice("whitelist-role-ids"))
	bot.RegisterHandlers()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go eng.Run(ctx)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cctx.String("metrics-listen"), mux); err != nil {
			logger.Error("metrics listener failed", "err", err)
		}
	}()

	if err := session.Open(); err != nil {
		return err
	}
	logger.Info("gateway connected",
		"guild", cfg.GuildID, "version", versioninfo.Short())

	<-ctx.Done()
	logger.Info("shutting down")
	return session.Close()
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
