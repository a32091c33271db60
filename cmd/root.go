package main

import (
	"github.com/mynextid/email-zk/cmd/zkemail"
	"github.com/spf13/cobra"
)

// Init the cmd
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "zkemail",
		Short: "Email ZK circuit input toolkit",
		Long:  `Tools and an API server for turning DKIM-signed emails into zero-knowledge circuit inputs`,
	}

	rootCmd.AddCommand(
		zkemail.NewServeCmd(),
		zkemail.NewInputsCmd(),
		zkemail.NewSaltCmd(),
		NewVersionCmd(),
	)

	return rootCmd
}
