// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration management for pvremux.
//
// Precedence is Defaults -> YAML file -> Environment. The resulting AppConfig
// is treated as read-only once loaded; concurrent jobs share it.
//
// Parameter profiles are free-form string maps under "profiles". The remux
// engine reads numbered keys (CopyRemux0, CopyRemux1, ...) until one is
// missing or empty.
package config
