// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/luxfi/multibridge"
	"github.com/luxfi/multibridge/bridge"
	"github.com/luxfi/multibridge/devnet"
)

var (
	simSender    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	simRecipient = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	simTarget    = common.HexToAddress("0x0000000000000000000000000000000000000e01")
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a multi-bridge transfer and a timelocked message on a devnet",
	Long: `Deploy a two-chain devnet, send a multi-bridge asset transfer and a
cross-chain message over the first min-bridges multi-bridge adapters,
relay every leg, wait out the timelock and execute the message. Every
emitted event is printed.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().String("amount", "1000", "Amount to bridge in base units")
}

type simClock struct{ t uint64 }

func (c *simClock) now() uint64 { return c.t }

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	amountStr, _ := cmd.Flags().GetString("amount")
	amount, err := uint256.FromDecimal(amountStr)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", amountStr, err)
	}

	clock := &simClock{t: uint64(time.Now().Unix())}
	d, err := devnet.New(cfg, newLogger(cfg), clock.now)
	if err != nil {
		return err
	}
	r, err := d.Relayer(cfg.Relayer, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	if err := devnet.Fund(d.Source, simSender, new(uint256.Int).Mul(amount, uint256.NewInt(2))); err != nil {
		return err
	}

	kinds := cfg.MultiBridgeKinds()[:cfg.MinBridges]
	adapters, err := d.Source.AdapterAddresses(kinds...)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	transferID, err := d.Source.Asset.TransferTo(ctx, simSender, &bridge.TransferRequest{
		Recipient:   simRecipient,
		Amount:      amount,
		DestChainID: d.Destination.ID,
		Adapters:    adapters,
		Fees:        make([]*uint256.Int, len(adapters)),
		Options:     make([][]byte, len(adapters)),
	})
	if err != nil {
		return fmt.Errorf("transfer failed: %w", err)
	}
	messageID, err := d.Source.Messages.SendMessage(ctx, devnet.Originator, &bridge.MessageRequest{
		Targets:     []common.Address{simTarget},
		Calldatas:   [][]byte{common.FromHex("0xcafe")},
		DestChainID: d.Destination.ID,
		Adapters:    adapters,
		Fees:        make([]*uint256.Int, len(adapters)),
		Options:     make([][]byte, len(adapters)),
		Threshold:   cfg.MinBridges,
	})
	if err != nil {
		return fmt.Errorf("message failed: %w", err)
	}

	delivered, err := r.Pump(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "transfer %s\nmessage  %s\ndelivered %d packets\n", transferID.Hex(), messageID.Hex(), delivered)

	clock.t += uint64(cfg.TimelockDelay / time.Second)
	if !d.Destination.Messages.IsReceivedMessageExecutable(messageID) {
		return fmt.Errorf("%w: message %s", multibridge.ErrMsgNotExecutableYet, messageID.Hex())
	}
	if err := d.Destination.Messages.Execute(ctx, messageID); err != nil {
		return fmt.Errorf("execute failed: %w", err)
	}
	fmt.Fprintf(out, "recipient balance %s\n\n", d.Destination.Token.BalanceOf(simRecipient).Dec())
	return printEvents(out, d.Events())
}

func printEvents(w io.Writer, records []devnet.Record) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHAIN\tCONTROLLER\tEVENT\tID\tREMOTE\tAMOUNT")
	for _, r := range records {
		amount := "-"
		if r.Event.Amount != nil {
			amount = r.Event.Amount.Dec()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
			r.ChainID,
			r.Controller,
			r.Event.Type,
			r.Event.ID.TerminalString(),
			r.Event.ChainID,
			amount,
		)
	}
	return tw.Flush()
}
