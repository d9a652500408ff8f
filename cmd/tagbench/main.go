package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/rip-create-your-account/tagbench"
	"github.com/rip-create-your-account/tagbench/internal/logger"
)

func main() {
	cfg, err := tagbench.LoadConfig(nil)
	if err != nil {
		panic(err)
	}
	logger.InitLogger(cfg.LogLevel)

	if _, err := tagbench.Run(cfg, cfg.Generator(), os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("benchmark failed")
	}
}
