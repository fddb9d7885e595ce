// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the federation
// service.
//
// Configuration is loaded from a single YAML file specified by:
//   - FEDERATION_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
// After the file is parsed, individual fields may be overridden by
// FEDERATION_* environment variables (see the env tags on [Config]),
// which is how deployment tooling injects per-host values without
// templating the file.
package config
