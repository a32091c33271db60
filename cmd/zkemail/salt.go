package zkemail

import (
	"fmt"

	"github.com/mynextid/email-zk/commitment"
	"github.com/spf13/cobra"
)

func NewSaltCmd() *cobra.Command {
	var emailAddress, accountCode string

	cmd := &cobra.Command{
		Use:     "salt",
		Short:   "Derive the account salt for an email address",
		Long:    `Derive the Poseidon account salt binding an email address to an account code. The salt is what on-chain contracts see in place of the address.`,
		Example: `  zkemail salt -a alice@example.com --account-code 0x01eb...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			salt, err := commitment.CalculateAccountSalt(emailAddress, accountCode)
			if err != nil {
				return fmt.Errorf("failed to derive salt: %w", err)
			}
			fmt.Println(salt)
			return nil
		},
	}

	cmd.Flags().StringVarP(&emailAddress, "address", "a", "", "Email address")
	cmd.Flags().StringVar(&accountCode, "account-code", "", "Account code as 0x-prefixed hex")
	cobra.CheckErr(cmd.MarkFlagRequired("address"))
	cobra.CheckErr(cmd.MarkFlagRequired("account-code"))

	return cmd
}
