package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"arm-ai/internal/app"
	"arm-ai/internal/statelog"
)

var (
	eventType   string
	eventData   string
	eventFields map[string]string
	pendingMax  int
)

var logEventCmd = &cobra.Command{
	Use:   "log-event",
	Short: "Record a risk event",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		event, err := buildEvent(eventType, eventData, eventFields)
		if err != nil {
			return err
		}
		return getApp().LogEvent(cmd.Context(), cmd.OutOrStdout(), event)
	},
}

var getEventCmd = &cobra.Command{
	Use:   "get-event <id>",
	Short: "Print a stored risk event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().GetEvent(cmd.Context(), cmd.OutOrStdout(), args[0])
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List risk events not yet processed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if pendingMax <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		return getApp().Pending(cmd.Context(), cmd.OutOrStdout(), app.PendingOptions{Limit: pendingMax})
	},
}

var ackCmd = &cobra.Command{
	Use:   "ack <id>...",
	Short: "Mark risk events as processed",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Ack(cmd.Context(), args)
	},
}

func init() {
	logEventCmd.Flags().StringVar(&eventType, "type", "", "Event type, e.g. drawdown_breach")
	logEventCmd.Flags().StringVar(&eventData, "data", "", "Event body as a JSON object")
	logEventCmd.Flags().StringToStringVar(&eventFields, "field", nil, "Extra field as key=value (repeatable)")

	pendingCmd.Flags().IntVar(&pendingMax, "limit", 20, "Number of events to display")
}

// buildEvent merges the JSON body, --field pairs, and --type, in that order.
func buildEvent(kind, data string, fields map[string]string) (statelog.EventData, error) {
	event, err := parseObject(data)
	if err != nil {
		return nil, fmt.Errorf("invalid --data value: %w", err)
	}
	for k, v := range fields {
		event[k] = parseScalar(v)
	}
	if kind != "" {
		event[statelog.FieldType] = kind
	}
	if len(event) == 0 {
		return nil, fmt.Errorf("event is empty; pass --type, --data or --field")
	}
	return event, nil
}

func parseObject(data string) (map[string]any, error) {
	out := make(map[string]any)
	if data == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// parseScalar keeps numbers and booleans typed so they can be queried.
func parseScalar(v string) any {
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}
