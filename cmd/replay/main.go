// Command replay feeds a protocol script through the matching engine and
// writes acknowledgements, trades and top-of-book changes.
//
//	replay -in scenarios.csv -out results.csv
//
// Input and output default to stdin and stdout. Logs go to stderr.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"orderbook/src/config"
	"orderbook/src/engine"
	"orderbook/src/logger"
	"orderbook/src/protocol"
)

func main() {
	inPath := flag.String("in", "-", "input script, - for stdin")
	outPath := flag.String("out", "-", "output file, - for stdout")
	flag.Parse()

	cfg, cfgErr := config.Load()
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || cfg.Log.Level == "" {
		level = zerolog.InfoLevel
	}
	log := logger.New(os.Stderr).Level(level)
	if cfgErr != nil {
		log.Fatal().Err(cfgErr).Msg("Failed to load configuration")
	}

	var in io.Reader = os.Stdin
	if *inPath != "-" {
		f, err := os.Open(*inPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *inPath).Msg("Cannot open input file")
		}
		defer f.Close()
		in = f
	}

	var out io.Writer = os.Stdout
	if *outPath != "-" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *outPath).Msg("Cannot open output file")
		}
		defer f.Close()
		out = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session := protocol.NewSession(engine.NewRegistry(), out, log)
	if err := session.Run(ctx, in); err != nil {
		log.Error().Err(err).Msg("Replay stopped")
		stop()
		os.Exit(1)
	}

	stats := session.Stats()
	log.Info().
		Int("lines", stats.Lines).
		Int("commands", stats.Commands).
		Int("rejected", stats.Rejected).
		Int("parse_errors", stats.ParseErrors).
		Int("trades", stats.Trades).
		Msg("Replay complete")
}
