package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"example.com/premeepro/production/cmd"
)

// bootLogger covers startup until the command reads its config and
// reconfigures logging.
func bootLogger() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func main() {
	bootLogger()

	if err := cmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("production service exited")
	}
}
