// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/crypto/ssh"

	"github.com/keyward-dev/keyward/cmd/keyward/cli"
	"github.com/keyward-dev/keyward/lib/sealed"
	"github.com/keyward-dev/keyward/lib/secret"
)

func (a *app) sealCommand() *cli.Command {
	var (
		recipients []string
		output     string
		force      bool
	)
	return &cli.Command{
		Name:    "seal",
		Summary: "Encrypt a private key file with age",
		Description: `Encrypt an unencrypted OpenSSH or PEM private key to one or more
age recipients. The result is written next to the input with an .age
suffix unless --output is given. A file store configured with a
matching age_identity_file loads sealed keys like plain ones.

The input must parse as a private key without a passphrase; the
input file is left in place.`,
		Usage: "keyward seal --recipient <age-recipient> [flags] <private-key-file>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("seal", pflag.ContinueOnError)
			flagSet.StringArrayVarP(&recipients, "recipient", "r", nil, "age recipient (repeatable)")
			flagSet.StringVarP(&output, "output", "o", "", "output path (default: <input>"+sealed.Extension+")")
			flagSet.BoolVar(&force, "force", false, "overwrite an existing output file")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return errors.New("seal takes exactly one private key file")
			}
			if len(recipients) == 0 {
				return errors.New("at least one --recipient is required")
			}
			input := args[0]
			if output == "" {
				output = input + sealed.Extension
			}
			if err := sealKeyFile(input, output, recipients, force); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, output)
			return nil
		},
	}
}

func sealKeyFile(input, output string, recipientKeys []string, force bool) error {
	parsedRecipients, err := sealed.ParseRecipients(recipientKeys)
	if err != nil {
		return err
	}

	plaintext, err := secret.ReadFile(input)
	if err != nil {
		return fmt.Errorf("reading %s: %w", input, err)
	}
	defer plaintext.Close()

	if _, err := ssh.ParseRawPrivateKey(plaintext.Bytes()); err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return fmt.Errorf("%s is passphrase-protected; remove the passphrase before sealing", input)
		}
		return fmt.Errorf("%s is not a private key: %w", input, err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	file, err := os.OpenFile(output, flags, 0o600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", output, err)
	}
	if err := sealed.Seal(file, plaintext.Bytes(), parsedRecipients...); err != nil {
		file.Close()
		os.Remove(output)
		return fmt.Errorf("sealing %s: %w", input, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(output)
		return fmt.Errorf("writing %s: %w", output, err)
	}
	return nil
}
