package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"verisimdb/core"
)

// HexadCmd groups hexad CRUD and search subcommands.
var HexadCmd = &cobra.Command{
	Use:   "hexad",
	Short: "create, inspect and search hexads",
}

func init() {
	HexadCmd.AddCommand(hexadCreateCmd())
	HexadCmd.AddCommand(hexadGetCmd())
	HexadCmd.AddCommand(hexadListCmd())
	HexadCmd.AddCommand(hexadDeleteCmd())
	HexadCmd.AddCommand(hexadSearchTextCmd())
	HexadCmd.AddCommand(hexadSearchVectorCmd())
}

func hexadCreateCmd() *cobra.Command {
	var title, body, vector string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "create a hexad from a document body and optional embedding",
		RunE: func(cmd *cobra.Command, args []string) error {
			input := core.HexadInput{}
			if title != "" || body != "" {
				input.DocumentData = &core.Document{Title: title, Body: body}
			}
			if vector != "" {
				embedding, err := parseVector(vector)
				if err != nil {
					return err
				}
				input.Embedding = &core.Embedding{Vector: embedding}
			}
			h, err := store.Create(input)
			if err != nil {
				return err
			}
			return printJSON(h)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "document title")
	cmd.Flags().StringVar(&body, "body", "", "document body")
	cmd.Flags().StringVar(&vector, "vector", "", "comma-separated embedding values")
	return cmd
}

func hexadGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [id]",
		Short: "fetch a hexad by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := store.Read(core.HexadId(args[0]))
			if err != nil {
				return err
			}
			if h == nil {
				return fmt.Errorf("hexad %s not found", args[0])
			}
			return printJSON(h)
		},
	}
}

func hexadListCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list hexads",
		RunE: func(cmd *cobra.Command, args []string) error {
			hexads, err := store.List(limit, offset)
			if err != nil {
				return err
			}
			return printJSON(hexads)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum results")
	cmd.Flags().IntVar(&offset, "offset", 0, "result offset")
	return cmd
}

func hexadDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "delete a hexad by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return store.Delete(core.HexadId(args[0]))
		},
	}
}

func hexadSearchTextCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search-text [query]",
		Short: "full-text search over document bodies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hexads, err := store.SearchText(args[0], limit)
			if err != nil {
				return err
			}
			return printJSON(hexads)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	return cmd
}

func hexadSearchVectorCmd() *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "search-vector [comma-separated values]",
		Short: "approximate nearest neighbor search",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vec, err := parseVector(args[0])
			if err != nil {
				return err
			}
			hexads, err := store.SearchSimilar(vec, k)
			if err != nil {
				return err
			}
			return printJSON(hexads)
		},
	}
	cmd.Flags().IntVar(&k, "k", 10, "neighbors to return")
	return cmd
}

func parseVector(raw string) ([]float32, error) {
	parts := strings.Split(raw, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		out = append(out, float32(v))
	}
	return out, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
