// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/multibridge/bridge"
	"github.com/luxfi/multibridge/devnet"
)

const readHeaderTimeout = 5 * time.Second

var relayerCmd = &cobra.Command{
	Use:   "relayer",
	Short: "Run a devnet with the relayer until interrupted",
	Long: `Deploy a two-chain devnet, queue a number of single-bridge transfers
and keep the relayer pumping packets and resending stuck sends until the
process receives SIGINT or SIGTERM. Metrics are served on --metrics-port
when it is non-zero.`,
	RunE: runRelayer,
}

func init() {
	relayerCmd.Flags().Uint16("metrics-port", 0, "Port to serve prometheus metrics on, 0 disables")
	relayerCmd.Flags().Int("transfers", 1, "Single-bridge transfers to queue at startup")
}

func runRelayer(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	port, _ := cmd.Flags().GetUint16("metrics-port")
	transfers, _ := cmd.Flags().GetInt("transfers")

	logger := newLogger(cfg)
	d, err := devnet.New(cfg, logger, nil)
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	r, err := d.Relayer(cfg.Relayer, reg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapters, err := d.Source.AdapterAddresses(cfg.Kinds()...)
	if err != nil {
		return err
	}
	if err := queueTransfers(ctx, d, adapters, transfers); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.Run(ctx)
	})
	if port != 0 {
		server := &http.Server{
			Addr: fmt.Sprintf(":%d", port),
			Handler: promhttp.HandlerFor(
				prometheus.Gatherers{d.Registry, reg},
				promhttp.HandlerOpts{},
			),
			ReadHeaderTimeout: readHeaderTimeout,
		}
		g.Go(func() error {
			logger.Info("serving metrics", log.Uint64("port", uint64(port)))
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), readHeaderTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

// queueTransfers sends n transfers from a funded account, one per adapter
// in round robin.
func queueTransfers(ctx context.Context, d *devnet.Devnet, adapters []common.Address, n int) error {
	if n <= 0 {
		return nil
	}
	amount := uint256.NewInt(1)
	if err := devnet.Fund(d.Source, simSender, uint256.NewInt(uint64(n))); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		_, err := d.Source.Asset.TransferTo(ctx, simSender, &bridge.TransferRequest{
			Recipient:   simRecipient,
			Amount:      amount,
			DestChainID: d.Destination.ID,
			Adapters:    adapters[i%len(adapters) : i%len(adapters)+1],
			Fees:        make([]*uint256.Int, 1),
			Options:     make([][]byte, 1),
		})
		if err != nil {
			return fmt.Errorf("failed to queue transfer %d: %w", i, err)
		}
	}
	return nil
}
