// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads keyward's configuration file.
//
// Configuration comes from a single file named by the KEYWARD_CONFIG
// environment variable (via [Load]) or a --config flag (via
// [LoadFile]). There is no discovery and no environment variable
// overrides individual values. The format follows the file extension:
// .yaml and .yml are YAML, .toml is TOML. Unknown keys are errors in
// both formats.
//
// Path fields expand ${HOME}, ${XDG_RUNTIME_DIR} and ${VAR:-default}
// after loading. [Config.Validate] reports every problem at once.
package config
