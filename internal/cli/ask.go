package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"baria-go/internal/service"
)

var askUser string

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the assistant a question as a patient",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askUser, "user", "u", "bariactl", "patient id the conversation is kept under")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	body := map[string]string{"user_id": askUser, "question": strings.Join(args, " ")}
	var res service.AskResult
	if err := newAPIClient().postJSON(context.Background(), "/ask", body, &res); err != nil {
		return err
	}
	cmd.Println(res.Answer)
	for _, n := range res.Notes {
		cmd.Println(n)
	}
	if len(res.Sources) > 0 {
		cmd.Println()
		cmd.Println("Sources: " + strings.Join(res.Sources, ", "))
	}
	if res.Critical {
		return &ExitError{Code: 2}
	}
	return nil
}
