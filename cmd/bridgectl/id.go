// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/spf13/cobra"

	"github.com/luxfi/multibridge"
)

var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Derive transfer and message ids",
}

var transferIDCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Derive the id of an asset transfer",
	Long: `Derive the id every adapter leg of an asset transfer is counted under.
The id depends on sender, recipient, amount, nonce and both chain ids.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		sender, err := addressFlag(cmd, "sender")
		if err != nil {
			return err
		}
		recipient, err := addressFlag(cmd, "recipient")
		if err != nil {
			return err
		}
		amountStr, _ := cmd.Flags().GetString("amount")
		amount, err := uint256.FromDecimal(amountStr)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", amountStr, err)
		}
		nonce, _ := cmd.Flags().GetUint64("nonce")
		origin, _ := cmd.Flags().GetUint64("origin")
		dest, _ := cmd.Flags().GetUint64("dest")

		id := multibridge.TransferID(sender, recipient, amount, nonce, origin, dest)
		fmt.Fprintln(cmd.OutOrStdout(), id.Hex())
		return nil
	},
}

var messageIDCmd = &cobra.Command{
	Use:   "message",
	Short: "Derive the id of a cross-chain message",
	RunE: func(cmd *cobra.Command, _ []string) error {
		sender, err := addressFlag(cmd, "sender")
		if err != nil {
			return err
		}
		targetStrs, _ := cmd.Flags().GetStringSlice("target")
		calldataStrs, _ := cmd.Flags().GetStringSlice("calldata")
		if len(targetStrs) != len(calldataStrs) {
			return fmt.Errorf("%w: %d targets, %d calldatas", multibridge.ErrArrayLengthMismatch, len(targetStrs), len(calldataStrs))
		}
		targets := make([]common.Address, len(targetStrs))
		calldatas := make([][]byte, len(calldataStrs))
		for i := range targetStrs {
			if !common.IsHexAddress(targetStrs[i]) {
				return fmt.Errorf("invalid target %q", targetStrs[i])
			}
			targets[i] = common.HexToAddress(targetStrs[i])
			calldatas[i] = common.FromHex(calldataStrs[i])
		}
		nonce, _ := cmd.Flags().GetUint64("nonce")
		origin, _ := cmd.Flags().GetUint64("origin")
		dest, _ := cmd.Flags().GetUint64("dest")

		payloadHash := multibridge.PayloadHash(targets, calldatas)
		id := multibridge.MessageID(sender, payloadHash, nonce, origin, dest)
		fmt.Fprintln(cmd.OutOrStdout(), id.Hex())
		return nil
	},
}

func init() {
	idCmd.AddCommand(transferIDCmd)
	idCmd.AddCommand(messageIDCmd)

	for _, c := range []*cobra.Command{transferIDCmd, messageIDCmd} {
		c.Flags().String("sender", "", "Sender address")
		c.Flags().Uint64("nonce", 0, "Source controller nonce")
		c.Flags().Uint64("origin", 0, "Origin chain id")
		c.Flags().Uint64("dest", 0, "Destination chain id")
		_ = c.MarkFlagRequired("sender")
		_ = c.MarkFlagRequired("origin")
		_ = c.MarkFlagRequired("dest")
	}

	transferIDCmd.Flags().String("recipient", "", "Recipient address")
	transferIDCmd.Flags().String("amount", "0", "Amount in base units")
	_ = transferIDCmd.MarkFlagRequired("recipient")
	_ = transferIDCmd.MarkFlagRequired("amount")

	messageIDCmd.Flags().StringSlice("target", nil, "Call target, repeatable")
	messageIDCmd.Flags().StringSlice("calldata", nil, "Hex calldata for the matching target, repeatable")
}

func addressFlag(cmd *cobra.Command, name string) (common.Address, error) {
	s, _ := cmd.Flags().GetString(name)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", name, s)
	}
	return common.HexToAddress(s), nil
}
