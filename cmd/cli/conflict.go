package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"verisimdb/core"
)

// ConflictCmd groups conflict detection and resolution subcommands. The
// resolver held here is process-local; a long-running node would back it
// with persistent storage, which is out of scope for this CLI.
var ConflictCmd = &cobra.Command{
	Use:   "conflict",
	Short: "detect and resolve modality conflicts",
}

func init() {
	ConflictCmd.AddCommand(conflictDetectCmd())
	ConflictCmd.AddCommand(conflictListCmd())
	ConflictCmd.AddCommand(conflictResolveCmd())
	ConflictCmd.AddCommand(conflictDismissCmd())
}

func conflictDetectCmd() *cobra.Command {
	var entityID, modalities, description string
	var driftScore float64

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "register a new open conflict",
		RunE: func(cmd *cobra.Command, args []string) error {
			mods := strings.Split(modalities, ",")
			c := conflictRes.DetectConflict(entityID, mods, driftScore, description)
			return printJSON(c)
		},
	}
	cmd.Flags().StringVar(&entityID, "entity-id", "", "conflicting hexad id")
	cmd.Flags().StringVar(&modalities, "modalities", "", "comma-separated conflicting modalities")
	cmd.Flags().Float64Var(&driftScore, "drift-score", 0, "observed drift score")
	cmd.Flags().StringVar(&description, "description", "", "human-readable description")
	_ = cmd.MarkFlagRequired("entity-id")
	_ = cmd.MarkFlagRequired("modalities")
	return cmd
}

func conflictListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list active conflicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(conflictRes.Active())
		},
	}
}

func conflictResolveCmd() *cobra.Command {
	var policy string
	var priorityOrder string

	cmd := &cobra.Command{
		Use:   "resolve [conflict-id]",
		Short: "apply a resolution policy to a conflict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p *core.ConflictPolicy
			if policy != "" {
				parsed, err := parsePolicy(policy, priorityOrder)
				if err != nil {
					return err
				}
				p = &parsed
			}
			res, err := conflictRes.Resolve(args[0], p, nil)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().StringVar(&policy, "policy", "", "last_writer_wins, modality_priority, manual_resolve, auto_merge")
	cmd.Flags().StringVar(&priorityOrder, "priority-order", "", "comma-separated modality priority, for modality_priority")
	return cmd
}

func conflictDismissCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss [conflict-id]",
		Short: "dismiss a conflict without resolving it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return conflictRes.Dismiss(args[0])
		},
	}
}

func parsePolicy(name, priorityOrder string) (core.ConflictPolicy, error) {
	switch name {
	case "last_writer_wins":
		return core.ConflictPolicy{Kind: core.PolicyLastWriterWins}, nil
	case "modality_priority":
		return core.ConflictPolicy{Kind: core.PolicyModalityPriority, PriorityOrder: strings.Split(priorityOrder, ",")}, nil
	case "manual_resolve":
		return core.ConflictPolicy{Kind: core.PolicyManualResolve}, nil
	case "auto_merge":
		return core.ConflictPolicy{Kind: core.PolicyAutoMerge}, nil
	default:
		return core.ConflictPolicy{}, fmt.Errorf("unknown policy %q", name)
	}
}
