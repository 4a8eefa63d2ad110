package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"arm-ai/internal/statelog"
	"arm-ai/internal/storage"
)

// Kinds accepted by SaveState.
const (
	StateKindPortfolio = "portfolio"
	StateKindModel     = "model"
)

// LogEvent records a risk event and prints its id.
func (a *App) LogEvent(ctx context.Context, out io.Writer, event statelog.EventData) error {
	client, err := a.client(ctx)
	if err != nil {
		return err
	}
	id, err := client.LogRiskEvent(ctx, event)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, id)
	return nil
}

// GetEvent prints a stored risk event as JSON.
func (a *App) GetEvent(ctx context.Context, out io.Writer, id string) error {
	client, err := a.client(ctx)
	if err != nil {
		return err
	}
	event, err := client.GetRiskEvent(ctx, id)
	if err != nil {
		return err
	}

	payload := map[string]any{"id": event.ID}
	for k, v := range event.Fields {
		payload[k] = v
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

// Pending prints unprocessed risk events, oldest first.
func (a *App) Pending(ctx context.Context, out io.Writer, opts PendingOptions) error {
	client, err := a.client(ctx)
	if err != nil {
		return err
	}
	events, err := client.ListUnprocessed(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(out, "no pending risk events")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tTime (UTC)\tType\tDetails")
	for _, event := range events {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
			event.ID,
			event.Timestamp.UTC().Format(time.RFC3339),
			event.Type,
			details(event.Fields),
		)
	}
	return writer.Flush()
}

// Ack marks the given events processed. Every id is attempted; failures are
// reported together.
func (a *App) Ack(ctx context.Context, ids []string) error {
	client, err := a.client(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, id := range ids {
		if err := client.MarkProcessed(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		a.Logger.Info().Str("event_id", id).Msg("risk event acknowledged")
	}
	return errors.Join(errs...)
}

// SaveState stores a portfolio or model snapshot.
func (a *App) SaveState(ctx context.Context, opts SaveStateOptions) error {
	client, err := a.client(ctx)
	if err != nil {
		return err
	}
	switch opts.Kind {
	case StateKindPortfolio:
		return client.SavePortfolioState(ctx, opts.ID, opts.Data)
	case StateKindModel:
		return client.SaveModelState(ctx, opts.ID, opts.Data)
	default:
		return fmt.Errorf("unknown state kind %q (want %s or %s)", opts.Kind, StateKindPortfolio, StateKindModel)
	}
}

// GetState prints a stored portfolio or model snapshot as JSON.
func (a *App) GetState(ctx context.Context, out io.Writer, kind, id string) error {
	client, err := a.client(ctx)
	if err != nil {
		return err
	}
	var doc storage.Document
	switch kind {
	case StateKindPortfolio:
		doc, err = client.GetPortfolioState(ctx, id)
	case StateKindModel:
		doc, err = client.GetModelState(ctx, id)
	default:
		return fmt.Errorf("unknown state kind %q (want %s or %s)", kind, StateKindPortfolio, StateKindModel)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(doc.Fields)
}

// details renders the caller-supplied fields on one line.
func details(fields map[string]any) string {
	rest := make(map[string]any, len(fields))
	for k, v := range fields {
		switch k {
		case statelog.FieldType, statelog.FieldTimestamp, statelog.FieldProcessed:
			continue
		}
		rest[k] = v
	}
	if len(rest) == 0 {
		return ""
	}
	raw, err := json.Marshal(rest)
	if err != nil {
		return fmt.Sprint(rest)
	}
	return sanitizeInline(string(raw))
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
