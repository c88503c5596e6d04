// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the keyward CLI.
//
// A [Command] has a name, an optional pflag.FlagSet factory, and either
// a Run function or nested Subcommands. [Command.Execute] routes
// arguments down the tree, parses flags, and prints help. Unknown
// subcommands get a "did you mean" suggestion based on edit distance.
package cli
