package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/slate-fm/maestro/config"
	"github.com/slate-fm/maestro/oauth"
	"github.com/slate-fm/maestro/room"
	"github.com/slate-fm/maestro/spotify"
	"github.com/slate-fm/maestro/store"
	"github.com/slate-fm/maestro/ws"
)

type app struct {
	room    *room.Room
	oauth   *oauth.Service
	spotify *spotify.Client
	rootURL string
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	config.Load()

	if viper.GetBool("debug") {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Debug().Msg("debug logging enabled")
	}

	st, err := store.New(viper.GetString("data.dir"))
	if err != nil {
		log.Fatal().Err(err).Msg("could not open data directory")
	}

	signer, err := oauth.NewStateSigner(st.Dir())
	if err != nil {
		log.Fatal().Err(err).Msg("could not initialise state signer")
	}

	oauthSvc := oauth.NewService(
		viper.GetString("spotify.client_id"),
		viper.GetString("spotify.client_secret"),
		viper.GetString("callback.spotify"),
		strings.Fields(viper.GetString("spotify.scopes")),
		signer,
	)

	client := spotify.NewClient(
		viper.GetString("spotify.client_id"),
		viper.GetString("spotify.client_secret"),
	)

	rm := room.New(client, st, room.Config{
		PollInterval:     time.Duration(viper.GetInt("room.poll_interval_ms")) * time.Millisecond,
		HeartbeatTimeout: time.Duration(viper.GetInt("room.heartbeat_timeout_ms")) * time.Millisecond,
		MasterAllowlist:  config.MasterAllowlist(),
		FallbackPlaylist: viper.GetString("room.fallback_playlist"),
		Debug:            viper.GetBool("debug"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rm.Restore(ctx); err != nil {
		log.Error().Err(err).Msg("state restore failed, starting fresh")
	}
	if err := rm.EnsureFallback(ctx); err != nil {
		log.Debug().Err(err).Msg("fallback playlist not loaded yet")
	}

	rm.StartLoop(ctx)
	rm.StartMaintenance(ctx)

	a := &app{
		room:    rm,
		oauth:   oauthSvc,
		spotify: client,
		rootURL: viper.GetString("server.root_url"),
	}

	addr := viper.GetString("server.host") + ":" + viper.GetString("server.port")
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.routes(ws.NewHandler(rm)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // websocket connections are long-lived
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("maestro listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server error")
	}
}
