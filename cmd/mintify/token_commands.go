package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func createTokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create a new token mint owned by the server wallet",
		Action: func(c *cli.Context) error {
			mint, err := newClient(c).CreateToken(c.Context)
			if err != nil {
				return describeError(fmt.Errorf("failed to create token: %w", err))
			}

			if jsonOutput(c) {
				return printJSON(c, map[string]string{"mint": mint})
			}
			fmt.Fprintf(c.App.Writer, "✓ Token created\n")
			fmt.Fprintf(c.App.Writer, "  Mint: %s\n", mint)
			return nil
		},
	}
}

func mintTokenCommand() *cli.Command {
	return &cli.Command{
		Name:      "mint",
		Usage:     "Mint tokens to the server wallet",
		ArgsUsage: "MINT_ADDRESS",
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:     "amount",
				Aliases:  []string{"a"},
				Usage:    "Number of whole tokens to mint",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("mint address is required")
			}
			mint := c.Args().Get(0)
			amount := c.Float64("amount")

			result, err := newClient(c).MintToken(c.Context, mint, amount)
			if err != nil {
				return describeError(fmt.Errorf("failed to mint tokens: %w", err))
			}

			if jsonOutput(c) {
				return printJSON(c, result)
			}
			fmt.Fprintf(c.App.Writer, "✓ Minted %g tokens\n", result.Amount)
			fmt.Fprintf(c.App.Writer, "  Mint:      %s\n", result.Mint)
			fmt.Fprintf(c.App.Writer, "  Signature: %s\n", result.Signature)
			fmt.Fprintf(c.App.Writer, "  Explorer:  %s\n", result.ExplorerURL)
			return nil
		},
	}
}

func transferTokenCommand() *cli.Command {
	return &cli.Command{
		Name:      "transfer",
		Usage:     "Transfer tokens from the server wallet to a recipient",
		ArgsUsage: "MINT_ADDRESS",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "to",
				Usage:    "Recipient wallet address",
				Required: true,
			},
			&cli.Float64Flag{
				Name:     "amount",
				Aliases:  []string{"a"},
				Usage:    "Number of whole tokens to transfer",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("mint address is required")
			}
			mint := c.Args().Get(0)

			rec, err := newClient(c).TransferToken(c.Context, mint, c.String("to"), c.Float64("amount"))
			if err != nil {
				return describeError(fmt.Errorf("failed to transfer tokens: %w", err))
			}

			if jsonOutput(c) {
				return printJSON(c, rec)
			}
			fmt.Fprintf(c.App.Writer, "✓ Transfer confirmed\n")
			printRecord(c.App.Writer, *rec)
			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List token operations recorded by the server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "type",
				Usage: "Filter by operation type (create, mint, transfer)",
			},
			&cli.StringFlag{
				Name:  "status",
				Usage: "Filter by status (success, failed)",
			},
			&cli.StringSliceFlag{
				Name:  "must-jq",
				Usage: "jq expression each record must satisfy (repeatable)",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of records to show (0 for all)",
			},
		},
		Action: func(c *cli.Context) error {
			codes, err := compileFilters(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			records, err := newClient(c).History(c.Context, c.String("type"), c.String("status"))
			if err != nil {
				return fmt.Errorf("failed to list history: %w", err)
			}

			limit := c.Int("limit")
			filtered := records[:0]
			for _, rec := range records {
				if limit > 0 && len(filtered) >= limit {
					break
				}
				if matchesAll(codes, rec) {
					filtered = append(filtered, rec)
				}
			}

			if jsonOutput(c) {
				return printJSON(c, filtered)
			}
			if len(filtered) == 0 {
				fmt.Fprintln(c.App.Writer, "No operations found")
				return nil
			}
			for _, rec := range filtered {
				printRecord(c.App.Writer, rec)
			}
			fmt.Fprintf(c.App.Writer, "Total: %d operation(s)\n", len(filtered))
			return nil
		},
	}
}

func holdingsCommand() *cli.Command {
	return &cli.Command{
		Name:      "holdings",
		Usage:     "List SPL token holdings of a wallet (defaults to the server wallet)",
		ArgsUsage: "[OWNER_ADDRESS]",
		Action: func(c *cli.Context) error {
			holdings, err := newClient(c).Holdings(c.Context, c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to list holdings: %w", err)
			}

			if jsonOutput(c) {
				return printJSON(c, holdings)
			}
			if len(holdings) == 0 {
				fmt.Fprintln(c.App.Writer, "No token holdings")
				return nil
			}
			fmt.Fprintf(c.App.Writer, "%-44s  %-44s  %s\n", "MINT", "ACCOUNT", "AMOUNT")
			for _, h := range holdings {
				fmt.Fprintf(c.App.Writer, "%-44s  %-44s  %g\n", h.Mint, h.Account, h.UIAmount)
			}
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the server wallet, network and SOL balance",
		Action: func(c *cli.Context) error {
			st, err := newClient(c).Status(c.Context)
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}

			if jsonOutput(c) {
				return printJSON(c, st)
			}
			fmt.Fprintf(c.App.Writer, "Network:   %s\n", st.Network)
			if !st.Connected {
				fmt.Fprintln(c.App.Writer, "Wallet:    not connected")
				return nil
			}
			fmt.Fprintf(c.App.Writer, "Wallet:    %s\n", st.Address)
			if st.Balance != nil {
				fmt.Fprintf(c.App.Writer, "Balance:   %.4f SOL\n", st.Balance.SOL)
			}
			return nil
		},
	}
}
