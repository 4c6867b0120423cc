package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// DefaultFallbackPlaylist seeds the fallback queue when no playlist has been
// configured and nobody has replaced it with their own.
const DefaultFallbackPlaylist = "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M"

// Load initializes the configuration with viper
func Load() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, using environment variables and defaults")
	}

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.root_url", "http://localhost:8080")
	viper.SetDefault("callback.spotify", "http://localhost:8080/callback")
	viper.SetDefault("spotify.scopes", "user-read-currently-playing user-read-playback-state user-modify-playback-state user-library-read user-read-email")
	viper.SetDefault("room.poll_interval_ms", 1000)
	viper.SetDefault("room.heartbeat_timeout_ms", 60000)
	viper.SetDefault("room.master_allowlist", "")
	viper.SetDefault("room.fallback_playlist", DefaultFallbackPlaylist)
	viper.SetDefault("data.dir", "./data")
	viper.SetDefault("debug", false)

	viper.AutomaticEnv()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatal().Err(err).Msg("error reading config file")
		}
		log.Info().Msg("config file not found, using default values and environment variables")
	} else {
		log.Info().Str("file", viper.ConfigFileUsed()).Msg("using config file")
	}

	// check for required settings
	requiredVars := []string{"spotify.client_id", "spotify.client_secret"}
	missingVars := []string{}

	for _, v := range requiredVars {
		if !viper.IsSet(v) {
			missingVars = append(missingVars, v)
		}
	}

	if len(missingVars) > 0 {
		log.Fatal().Str("missing", strings.Join(missingVars, ", ")).Msg("required configuration variables not set")
	}
}

// MasterAllowlist returns the set of emails permitted to take master control,
// lowercased for case-insensitive matching.
func MasterAllowlist() map[string]bool {
	raw := viper.GetString("room.master_allowlist")
	allowed := make(map[string]bool)
	for _, email := range strings.Split(raw, ",") {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" {
			allowed[email] = true
		}
	}
	return allowed
}
