package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/brojonat/mintify/client"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

func streamCommand() *cli.Command {
	return &cli.Command{
		Name:  "stream",
		Usage: "Stream token operations as the server records them (SSE)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "type",
				Usage: "Only stream one operation type (create, mint, transfer)",
			},
			&cli.StringFlag{
				Name:  "status",
				Usage: "Only stream one status (success, failed)",
			},
			&cli.StringSliceFlag{
				Name:  "must-jq",
				Usage: "jq expression each record must satisfy (repeatable)",
			},
		},
		Action: func(c *cli.Context) error {
			codes, err := compileFilters(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}
			asJSON := jsonOutput(c)

			params := url.Values{}
			if t := c.String("type"); t != "" {
				params.Set("type", t)
			}
			if s := c.String("status"); s != "" {
				params.Set("status", s)
			}
			endpoint := c.String("server") + "/api/v1/stream/history"
			if len(params) > 0 {
				endpoint += "?" + params.Encode()
			}

			// Create context that cancels on interrupt
			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			go func() {
				select {
				case <-sigChan:
					cancel()
				case <-ctx.Done():
				}
			}()

			req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Accept", "text/event-stream")

			// No timeout for streaming
			resp, err := (&http.Client{}).Do(req)
			if err != nil {
				return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusNotFound {
				return fmt.Errorf("server does not have streaming enabled (NATS not configured)")
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned status %d", resp.StatusCode)
			}

			if !asJSON {
				fmt.Fprintf(c.App.ErrWriter, "Streaming token operations... (Ctrl+C to stop)\n\n")
			}

			err = readEvents(resp.Body, func(event, data string) error {
				return handleSSEEvent(c.App.Writer, c.App.ErrWriter, event, data, codes, asJSON, c.String("jq"))
			})
			if err != nil && ctx.Err() != nil {
				if !asJSON {
					fmt.Fprintf(c.App.ErrWriter, "\nDisconnected\n")
				}
				return nil
			}
			return err
		},
	}
}

// readEvents parses a text/event-stream body and calls fn for each complete
// event. Comment lines (keepalives) are skipped.
func readEvents(r io.Reader, fn func(event, data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var currentEvent, currentData string

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line indicates end of event
		if line == "" {
			if currentEvent != "" && currentData != "" {
				if err := fn(currentEvent, currentData); err != nil {
					return err
				}
			}
			currentEvent = ""
			currentData = ""
			continue
		}

		if strings.HasPrefix(line, "event:") {
			currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			currentData = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}

// handleSSEEvent renders one stream event. Records failing codes are skipped;
// project, when set, is a jq expression applied to each record.
func handleSSEEvent(out, errOut io.Writer, eventType, data string, codes []*gojq.Code, asJSON bool, project string) error {
	switch eventType {
	case "connected":
		if !asJSON {
			var info map[string]any
			if err := json.Unmarshal([]byte(data), &info); err != nil {
				return err
			}
			fmt.Fprintf(errOut, "✓ Subscribed to %v\n\n", info["subject"])
		}
		return nil

	case "record":
		var rec client.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			fmt.Fprintf(errOut, "Error handling event: %v\n", err)
			return nil
		}
		if !matchesAll(codes, rec) {
			return nil
		}
		switch {
		case project != "":
			return printJQ(out, project, rec)
		case asJSON:
			fmt.Fprintln(out, data)
		default:
			printRecord(out, rec)
		}
		return nil

	case "error":
		var errInfo map[string]any
		if err := json.Unmarshal([]byte(data), &errInfo); err != nil {
			return err
		}
		return fmt.Errorf("server error: %v", errInfo["error"])

	default:
		// Unknown event type, ignore
		return nil
	}
}
