package main

import (
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"keyverify/bot"
	"keyverify/internal/admin"
	"keyverify/internal/config"
	"keyverify/internal/crypt"
	"keyverify/internal/database"
	"keyverify/internal/http-server/api"
	"keyverify/internal/payhip"
	"keyverify/internal/ticket"
	"keyverify/internal/verify"
	"keyverify/lib/logger"
	"keyverify/lib/sl"
)

func main() {
	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	lg := logger.SetupLogger(conf.Env, *logPath)
	lg.Info("starting keyverify", slog.String("config", *configPath), slog.String("env", conf.Env))

	cipher, err := crypt.New(conf.Crypt.Key)
	if err != nil {
		log.Fatal("encryption key: ", err)
	}

	db, err := database.NewSQLClient(conf)
	if err != nil {
		log.Fatal("database: ", err)
	}

	payhipClient := payhip.NewClient(conf.Payhip.APIKey, lg)

	discordBot, err := bot.NewDiscordBot(conf.Discord.Token, conf.Discord.AppID, db, cipher, lg)
	if err != nil {
		log.Fatal("discord session: ", err)
	}
	guild := discordBot.Platform()

	tickets := ticket.NewEngine(db, guild, lg)
	verifier := verify.NewEngine(db, payhipClient, guild, cipher, lg)
	discordBot.SetEngines(tickets, verifier)

	if err = discordBot.Start(); err != nil {
		log.Fatal("starting bot: ", err)
	}

	if conf.Api.Enabled {
		core := admin.New(conf.Api.Tokens, db, payhipClient, cipher, guild, lg)
		go func() {
			if err := api.New(conf, lg, core); err != nil {
				lg.Error("api server stopped", sl.Err(err))
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	discordBot.Stop()
	lg.Info("keyverify stopped")
}
