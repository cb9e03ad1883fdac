// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"github.com/spf13/cobra"

	"github.com/ava-labs/paranode/keystore"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage signing keys",
}

var keyGenerateCmd = &cobra.Command{
	Use:   "generate PATH",
	Short: "Generate an ed25519 signing key and write it to PATH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pk, err := keystore.Generate(args[0])
		if err != nil {
			return err
		}
		cmd.Printf("created key %s\npublic key: %s\n", args[0], pk)
		return nil
	},
}

var keyDevCmd = &cobra.Command{
	Use:       "dev NAME",
	Short:     "Print the public key of a well-known dev account",
	Args:      cobra.ExactArgs(1),
	ValidArgs: keystore.DevAccounts,
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := keystore.DevKey(args[0])
		if err != nil {
			return err
		}
		cmd.Printf("%s: %s\n", args[0], k.PublicKey())
		return nil
	},
}

func init() {
	keyCmd.AddCommand(keyGenerateCmd, keyDevCmd)
	rootCmd.AddCommand(keyCmd)
}
