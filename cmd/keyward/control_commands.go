// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/keyward-dev/keyward/cmd/keyward/cli"
	"github.com/keyward-dev/keyward/lib/codec"
	"github.com/keyward-dev/keyward/lib/control"
)

func (a *app) statusCommand() *cli.Command {
	var (
		flags controlFlags
		raw   bool
	)
	return &cli.Command{
		Name:    "status",
		Summary: "Show agent status and request counters",
		Usage:   "keyward status [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.BoolVar(&raw, "raw", false, "print the response in CBOR diagnostic notation")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			socketPath, err := flags.socketPath(a)
			if err != nil {
				return err
			}
			if raw {
				data, err := control.CallRaw(a.ctx, socketPath, control.ActionStatus, nil)
				if err != nil {
					return err
				}
				diagnostic, err := codec.Diagnose(data)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, diagnostic)
				return nil
			}

			var status control.StatusResult
			if err := control.Call(a.ctx, socketPath, control.ActionStatus, nil, &status); err != nil {
				return err
			}
			table := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(table, "version:\t%s\n", status.Version)
			fmt.Fprintf(table, "agent socket:\t%s\n", status.AgentSocket)
			fmt.Fprintf(table, "uptime:\t%s\n", time.Duration(status.UptimeSeconds)*time.Second)
			fmt.Fprintf(table, "stores:\t%d\n", status.Stores)
			fmt.Fprintf(table, "connections:\t%d active, %d total\n", status.ActiveConnections, status.TotalConnections)
			fmt.Fprintf(table, "requests:\t%d (%d failed, %d malformed)\n", status.Requests, status.Failures, status.MalformedRequests)
			return table.Flush()
		},
	}
}

func (a *app) identitiesCommand() *cli.Command {
	var flags controlFlags
	return &cli.Command{
		Name:    "identities",
		Summary: "List identities with the store that holds each",
		Usage:   "keyward identities [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("identities", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			socketPath, err := flags.socketPath(a)
			if err != nil {
				return err
			}
			var result control.IdentitiesResult
			if err := control.Call(a.ctx, socketPath, control.ActionIdentities, nil, &result); err != nil {
				return err
			}
			table := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(table, "STORE\tTYPE\tFINGERPRINT\tAPPROVAL\tSOURCE\tCOMMENT")
			for _, identity := range result.Identities {
				approval, source := "-", "-"
				if identity.Approval {
					approval = "required"
				}
				if identity.Source != "" {
					source = identity.Source
				}
				fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%s\t%s\n",
					identity.Backend, identity.KeyType, identity.Fingerprint, approval, source, identity.Comment)
			}
			return table.Flush()
		},
	}
}

func (a *app) reloadCommand() *cli.Command {
	var flags controlFlags
	return &cli.Command{
		Name:    "reload",
		Summary: "Rescan key directories",
		Description: `Ask the agent to rescan every file store. A store that fails to
reload keeps its previous keys. Exits 1 if any store failed.`,
		Usage: "keyward reload [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("reload", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			socketPath, err := flags.socketPath(a)
			if err != nil {
				return err
			}
			var result control.ReloadResult
			if err := control.Call(a.ctx, socketPath, control.ActionReload, nil, &result); err != nil {
				return err
			}

			failed := false
			for _, store := range result.Stores {
				if store.Error != "" {
					failed = true
					fmt.Fprintf(a.stdout, "%s: failed: %s\n", store.Store, store.Error)
					continue
				}
				fmt.Fprintf(a.stdout, "%s: %d loaded, %d skipped\n", store.Store, store.Report.Loaded, len(store.Report.Skipped))
				for _, skipped := range store.Report.Skipped {
					fmt.Fprintf(a.stdout, "  skipped %s: %s\n", skipped.File, skipped.Reason)
				}
			}
			if result.PublicKeysError != "" {
				failed = true
				fmt.Fprintf(a.stdout, "public keys: failed: %s\n", result.PublicKeysError)
			} else if result.PublicKeyFiles > 0 {
				fmt.Fprintf(a.stdout, "public keys: %d written\n", result.PublicKeyFiles)
			}
			if failed {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}
