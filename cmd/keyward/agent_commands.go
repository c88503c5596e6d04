// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/keyward-dev/keyward/cmd/keyward/cli"
	"github.com/keyward-dev/keyward/lib/config"
	"github.com/keyward-dev/keyward/lib/keydir"
	"github.com/keyward-dev/keyward/lib/pubkeyfile"
)

func (a *app) listCommand() *cli.Command {
	var (
		socket string
		long   bool
	)
	return &cli.Command{
		Name:    "list",
		Summary: "List the identities the agent offers",
		Description: `List the identities offered by the agent on $SSH_AUTH_SOCK.

On a terminal the output is a table of fingerprints. Otherwise each
identity is printed as an authorized_keys line. Exits 1 when the agent
has no identities.`,
		Usage: "keyward list [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flagSet.StringVar(&socket, "socket", "", "agent socket path (default: $SSH_AUTH_SOCK)")
			flagSet.BoolVarP(&long, "long", "L", false, "print authorized_keys lines even on a terminal")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			keys, err := a.agentKeys(socket)
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				fmt.Fprintln(a.stderr, "The agent has no identities.")
				return &cli.ExitError{Code: 1}
			}
			if long || !isTerminal(a.stdout) {
				for _, key := range keys {
					fmt.Fprintln(a.stdout, key.String())
				}
				return nil
			}
			table := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(table, "TYPE\tFINGERPRINT\tCOMMENT")
			for _, key := range keys {
				fmt.Fprintf(table, "%s\t%s\t%s\n", key.Type(), ssh.FingerprintSHA256(key), key.Comment)
			}
			return table.Flush()
		},
	}
}

func (a *app) exportCommand() *cli.Command {
	var (
		socket     string
		configPath string
		directory  string
		clear      bool
	)
	return &cli.Command{
		Name:    "export",
		Summary: "Write the agent's public keys to a directory",
		Description: `Write one .pub file per agent identity, named by the SHA-256 of
the key blob. Point an ssh_config IdentityFile at one of these files
(with IdentitiesOnly yes) to make ssh offer a single agent key.

The directory defaults to public_keys.directory from the agent
configuration.`,
		Usage: "keyward export [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("export", pflag.ContinueOnError)
			flagSet.StringVar(&socket, "socket", "", "agent socket path (default: $SSH_AUTH_SOCK)")
			flagSet.StringVar(&configPath, "config", "", "agent config file (default: $"+config.EnvironmentVariable+")")
			flagSet.StringVarP(&directory, "directory", "d", "", "output directory")
			flagSet.BoolVar(&clear, "clear", false, "remove .pub files for keys the agent no longer offers")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if directory == "" {
				cfg, err := a.loadConfig(configPath)
				if err != nil {
					return err
				}
				directory = cfg.PublicKeys.Directory
			}
			keys, err := a.agentKeys(socket)
			if err != nil {
				return err
			}
			identities := make([]keydir.Identity, 0, len(keys))
			for _, key := range keys {
				identities = append(identities, keydir.Identity{KeyBlob: key.Blob, Comment: key.Comment})
			}
			writer := pubkeyfile.Writer{Directory: directory}
			written, err := writer.Write(a.ctx, identities, clear)
			for _, path := range written {
				fmt.Fprintln(a.stdout, path)
			}
			return err
		},
	}
}

func (a *app) agentKeys(socketFlag string) ([]*agent.Key, error) {
	socketPath, err := a.agentSocketPath(socketFlag)
	if err != nil {
		return nil, err
	}
	conn, err := a.dialAgent(socketPath)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	keys, err := agent.NewClient(conn).List()
	if err != nil {
		return nil, fmt.Errorf("listing agent identities: %w", err)
	}
	return keys, nil
}
