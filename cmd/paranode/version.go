// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"github.com/spf13/cobra"

	"github.com/ava-labs/paranode/consts"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("%s %s\n", consts.Name, consts.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
