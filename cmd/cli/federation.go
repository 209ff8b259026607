package main

import (
	"strings"

	"github.com/spf13/cobra"
)

// FederationCmd groups peer registry administration subcommands.
var FederationCmd = &cobra.Command{
	Use:   "federation",
	Short: "manage federated peer stores",
}

func init() {
	FederationCmd.AddCommand(federationRegisterCmd())
	FederationCmd.AddCommand(federationHeartbeatCmd())
	FederationCmd.AddCommand(federationDeregisterCmd())
}

func federationRegisterCmd() *cobra.Command {
	var endpoint, modalities, key string
	cmd := &cobra.Command{
		Use:   "register [store-id]",
		Short: "register a peer store, authenticated by a pre-shared key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, err := federationRg.Register(args[0], endpoint, strings.Split(modalities, ","), key)
			if err != nil {
				return err
			}
			return printJSON(peer)
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "peer base URL")
	cmd.Flags().StringVar(&modalities, "modalities", "", "comma-separated supported modalities")
	cmd.Flags().StringVar(&key, "key", "", "pre-shared key, must match VERISIM_FEDERATION_KEYS")
	_ = cmd.MarkFlagRequired("endpoint")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func federationHeartbeatCmd() *cobra.Command {
	var key string
	var responseTimeMS float64
	cmd := &cobra.Command{
		Use:   "heartbeat [store-id]",
		Short: "record a liveness heartbeat for a registered peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return federationRg.Heartbeat(args[0], key, responseTimeMS)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "pre-shared key")
	cmd.Flags().Float64Var(&responseTimeMS, "response-time-ms", 0, "observed response time")
	return cmd
}

func federationDeregisterCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "deregister [store-id]",
		Short: "remove a registered peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return federationRg.Deregister(args[0], key)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "pre-shared key")
	return cmd
}
