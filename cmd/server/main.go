package main

import (
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"

	"github.com/mkarev/minibank/internal/ledger"
	"github.com/mkarev/minibank/internal/observability"
	"github.com/mkarev/minibank/internal/server"
	"github.com/mkarev/minibank/pkg/configpkg"
)

func main() {
	config, err := configpkg.Load("./configs")
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}

	logger := getLogger(config)

	observability.Init()
	if config.MetricsAddress != "" {
		go observability.Serve(config.MetricsAddress, logger)
	}

	store, err := ledger.Open(config.DataFile, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot open ledger")
	}
	observability.Accounts.Set(float64(store.Len()))

	lis, err := net.Listen("tcp", config.ServerAddress)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot listen")
	}

	if err := server.New(store, logger).Serve(lis); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func getLogger(config configpkg.Config) zerolog.Logger {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logger := zerolog.New(os.Stderr).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Logger()

	if config.Environment == "development" {
		logger = logger.
			Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			Level(zerolog.TraceLevel).
			With().
			Caller().
			Logger()
	}

	return logger
}
