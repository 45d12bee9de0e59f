package cli

import (
	"github.com/spf13/cobra"

	"baria-go/pkg/hash"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Print a bcrypt hash for auth.admins[].password_hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := hash.HashPassword(args[0])
		if err != nil {
			return err
		}
		cmd.Println(h)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
}
