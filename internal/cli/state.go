package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"arm-ai/internal/app"
)

var (
	stateKind string
	stateID   string
	stateData string
)

var saveStateCmd = &cobra.Command{
	Use:   "save-state",
	Short: "Store a portfolio or model state snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if stateID == "" {
			return fmt.Errorf("--id must be provided")
		}
		data, err := parseObject(stateData)
		if err != nil {
			return fmt.Errorf("invalid --data value: %w", err)
		}
		return getApp().SaveState(cmd.Context(), app.SaveStateOptions{
			Kind: stateKind,
			ID:   stateID,
			Data: data,
		})
	},
}

var getStateCmd = &cobra.Command{
	Use:   "get-state <id>",
	Short: "Print a portfolio or model state snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().GetState(cmd.Context(), cmd.OutOrStdout(), stateKind, args[0])
	},
}

func init() {
	saveStateCmd.Flags().StringVar(&stateKind, "kind", app.StateKindPortfolio, "Snapshot kind: portfolio or model")
	saveStateCmd.Flags().StringVar(&stateID, "id", "", "Document id to write")
	saveStateCmd.Flags().StringVar(&stateData, "data", "{}", "Snapshot body as a JSON object")

	getStateCmd.Flags().StringVar(&stateKind, "kind", app.StateKindPortfolio, "Snapshot kind: portfolio or model")
}
