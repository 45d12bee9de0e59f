package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"baria-go/internal/screening"
)

var (
	screenRules string
	screenJSON  bool
)

var screenCmd = &cobra.Command{
	Use:   "screen <text>",
	Short: "Screen a patient message for red flags locally",
	Long: `Runs the red-flag rules against the text without contacting the service.
Exits with status 2 when the message is critical.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScreen,
}

func init() {
	screenCmd.Flags().StringVar(&screenRules, "rules", "", "rule file (default: built-in rules)")
	screenCmd.Flags().BoolVar(&screenJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(screenCmd)
}

func runScreen(cmd *cobra.Command, args []string) error {
	rules, err := screening.DefaultRules()
	if screenRules != "" {
		rules, err = screening.LoadRules(screenRules)
	}
	if err != nil {
		return err
	}
	res := screening.New(rules).Screen(strings.Join(args, " "))

	if screenJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
	} else {
		printScreening(cmd, res)
	}
	if res.IsCritical {
		return &ExitError{Code: 2}
	}
	return nil
}

func printScreening(cmd *cobra.Command, res screening.Result) {
	if len(res.Flags) == 0 {
		cmd.Println("No red flags.")
		return
	}
	if res.IsCritical {
		cmd.Print(screening.FormatWarning(res.Flags))
		cmd.Println()
		return
	}
	for _, f := range res.Flags {
		cmd.Println(fmt.Sprintf("[%d] %s", f.Severity, f.Message))
	}
}
