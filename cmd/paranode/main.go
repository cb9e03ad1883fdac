// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ava-labs/paranode/consts"
)

var rootCmd = &cobra.Command{
	Use:   consts.Name,
	Short: "Parachain node: collator, full node or standalone dev chain",
	Long: `paranode runs in exactly one mode, chosen at startup:
  collator  authors blocks against a relay chain (requires --para-id)
  full      validates blocks produced elsewhere
  dev       seals blocks instantly without a relay chain`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runNode,
}

func init() {
	cobra.EnableCommandSorting = false
	addNodeFlags(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
