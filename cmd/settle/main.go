// Command settle fixes the outcome of one market over the server's socket.
//
//	settle <private_key> <market> <true|false> [ws_url]
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"hackmarket-backend/internal/auth"
	"hackmarket-backend/internal/rpc"
	"hackmarket-backend/internal/token"
)

const defaultURL = "ws://localhost:8080/ws"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if len(os.Args) < 4 || len(os.Args) > 5 {
		fmt.Fprintln(os.Stderr, "usage: settle <private_key> <market> <true|false> [ws_url]")
		os.Exit(2)
	}
	key, market := os.Args[1], os.Args[2]
	yesWon, err := strconv.ParseBool(os.Args[3])
	if err != nil {
		log.Fatal().Str("value", os.Args[3]).Msg("outcome must be true or false")
	}
	url := defaultURL
	if len(os.Args) == 5 {
		url = os.Args[4]
	}

	signer, err := auth.NewSigner(key)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid private key")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client := rpc.NewClient(url, signer)
	if err := client.Connect(ctx); err != nil {
		log.Fatal().Err(err).Str("url", url).Msg("failed to connect")
	}
	defer client.Close()

	if err := client.Authenticate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to authenticate")
	}
	log.Info().Str("account", signer.Address().Hex()).Msg("authenticated")

	res, err := client.Settle(ctx, market, yesWon)
	if err != nil {
		log.Fatal().Err(err).Str("market", market).Msg("settle failed")
	}

	outcome := "NO"
	if res.Event.YesWon {
		outcome = "YES"
	}
	fmt.Printf("market %s settled: %s won\n", res.Event.Market.Hex(), outcome)
	fmt.Printf("final pools: yes %s, no %s\n", token.FormatUnits(res.Event.YesPool), token.FormatUnits(res.Event.NoPool))
}
