package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/brojonat/mintify/client"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

const separator = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// newClient builds an API client from the global flags.
func newClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
	return client.NewClient(c.String("server"), nil, logger)
}

// jsonOutput reports whether machine-readable output was requested.
// --jq implies --json.
func jsonOutput(c *cli.Context) bool {
	return c.Bool("json") || c.String("jq") != ""
}

// printJSON writes v as indented JSON, or the results of the --jq
// expression applied to it.
func printJSON(c *cli.Context, v any) error {
	if expr := c.String("jq"); expr != "" {
		return printJQ(c.App.Writer, expr, v)
	}
	return writeIndented(c.App.Writer, v)
}

func writeIndented(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// printJQ runs expr over v and writes every result, strings unquoted.
func printJQ(w io.Writer, expr string, v any) error {
	codes, err := compileFilters([]string{expr})
	if err != nil {
		return err
	}
	doc, err := toJSONValue(v)
	if err != nil {
		return err
	}

	iter := codes[0].Run(doc)
	for {
		result, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := result.(error); isErr {
			return fmt.Errorf("jq filter %q failed: %w", expr, err)
		}
		if s, isString := result.(string); isString {
			fmt.Fprintln(w, s)
			continue
		}
		if err := writeIndented(w, result); err != nil {
			return err
		}
	}
}

// toJSONValue converts v into the plain maps and slices gojq operates on,
// keyed by the wire field names.
func toJSONValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return doc, nil
}

// describeError expands API errors with the transaction link, if any.
func describeError(err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.ExplorerURL != "" {
		return fmt.Errorf("%w\n\nCheck transaction: %s", err, apiErr.ExplorerURL)
	}
	return err
}

// compileFilters parses and compiles jq expressions.
func compileFilters(filters []string) ([]*gojq.Code, error) {
	codes := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		codes[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return codes, nil
}

// matchesAll reports whether every filter yields a truthy first result for v.
func matchesAll(codes []*gojq.Code, v any) bool {
	if len(codes) == 0 {
		return true
	}

	doc, err := toJSONValue(v)
	if err != nil {
		return false
	}

	for _, code := range codes {
		iter := code.Run(doc)
		result, ok := iter.Next()
		if !ok {
			return false
		}
		if _, isErr := result.(error); isErr {
			return false
		}
		if !isTruthy(result) {
			return false
		}
	}
	return true
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v any) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

func printRecord(w io.Writer, rec client.Record) {
	fmt.Fprintln(w, separator)
	fmt.Fprintf(w, "Type:       %s\n", rec.Type)
	fmt.Fprintf(w, "Status:     %s\n", rec.Status)
	fmt.Fprintf(w, "Mint:       %s\n", rec.Mint)
	fmt.Fprintf(w, "From:       %s\n", rec.From)
	if rec.To != "" {
		fmt.Fprintf(w, "To:         %s\n", rec.To)
	}
	if rec.Type != "create" {
		fmt.Fprintf(w, "Amount:     %g\n", rec.Amount)
	}
	if rec.Signature != "" {
		fmt.Fprintf(w, "Signature:  %s\n", rec.Signature)
	}
	if rec.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", rec.Error)
	}
	fmt.Fprintf(w, "Time:       %s\n", rec.Timestamp.Format(time.RFC3339))
	fmt.Fprintln(w)
}
