package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/lasagna-chain/lasagna/internal/blockchain"
	"github.com/lasagna-chain/lasagna/internal/clock"
	"github.com/lasagna-chain/lasagna/internal/keys"
	"github.com/lasagna-chain/lasagna/internal/params"
)

var (
	rootAccountFlag = &cli.StringSliceFlag{
		Name:     "root-account",
		Usage:    "hex-encoded ed25519 public key of a root account, repeatable",
		Required: true,
	}
	listenKeyFlag = &cli.StringFlag{
		Name:     "listen-key",
		Usage:    "file containing this node's hex-encoded ed25519 secret key",
		Required: true,
	}
	slotLengthFlag = &cli.Int64Flag{
		Name:  "slot-length",
		Usage: "timeslot length, in microseconds",
		Value: params.SlotLengthProd,
	}
	startTimeFlag = &cli.Int64Flag{
		Name:  "start-time",
		Usage: "genesis epoch, in Unix microseconds",
		Value: params.StartTime,
	}
)

func loadSecretKey(path string) (keys.SecretKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return keys.SecretKey{}, fmt.Errorf("reading listen-key file: %w", err)
	}
	return keys.ParseSecretKeyHex(string(raw))
}

func parseRootAccounts(hexKeys []string) ([]keys.PublicKey, error) {
	accounts := make([]keys.PublicKey, len(hexKeys))
	for i, h := range hexKeys {
		pk, err := keys.ParsePublicKeyHex(h)
		if err != nil {
			return nil, fmt.Errorf("root-account %d: %w", i, err)
		}
		accounts[i] = pk
	}
	return accounts, nil
}

func runNode(c *cli.Context) error {
	rootAccounts, err := parseRootAccounts(c.StringSlice("root-account"))
	if err != nil {
		return err
	}
	sk, err := loadSecretKey(c.String("listen-key"))
	if err != nil {
		return err
	}

	genesis := blockchain.ProduceGenesisBlock(rootAccounts, sk)
	chain, err := blockchain.Start(rootAccounts, genesis)
	if err != nil {
		return fmt.Errorf("starting chain: %w", err)
	}
	log.Info().Str("genesis", genesis.Hash.String()).Int("root_accounts", len(rootAccounts)).Msg("chain started")

	source := clock.NewWallFrom(c.Int64("start-time"), c.Int64("slot-length"))
	defer source.Stop()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	log.Info().Msg("node running, press Ctrl+C to stop")
	for {
		select {
		case <-shutdown:
			log.Info().Msg("shutting down")
			return nil
		case slot, ok := <-source.Timeslots():
			if !ok {
				return nil
			}
			chain.AdvanceTimeslot(slot)
			b, won := chain.MakeBlock(sk)
			if !won {
				continue
			}
			if err := chain.AddBlock(b); err != nil {
				log.Error().Err(err).Str("block", b.Hash.String()).Msg("failed to add locally produced block")
				continue
			}
			log.Info().Str("block", b.Hash.String()).Int64("depth", b.Depth).Int("transactions", len(b.Transactions)).Msg("produced block")
		}
	}
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	app := &cli.App{
		Name:  "lasagnad",
		Usage: "lasagna proof-of-stake node",
		Flags: []cli.Flag{
			rootAccountFlag,
			listenKeyFlag,
			slotLengthFlag,
			startTimeFlag,
		},
		Action: runNode,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("node exited")
	}
}
