/*
Package config loads engine settings for flowcompose graphs.

# Overview

Config wraps a map[string]any decoded from YAML or JSON and provides typed
accessors that fall back to a default when a key is missing or has the wrong
type. Settings is the engine-level view built on top of it.

# Basic Usage

	cfg, err := config.Load("flowcompose.yaml")
	if err != nil {
	    log.Fatal(err)
	}

	settings, err := config.SettingsFrom(cfg)
	if err != nil {
	    log.Fatal(err)
	}

	action, err := flowcompose.NewAction(ppl, flowcompose.WithSettings(settings))

A settings file looks like:

	parallel:
	  mode: concurrent     # or "sequential"
	  max_concurrency: 4
	  fail_fast: true
	observability:
	  log_level: debug
	  metrics: true
	  tracing: false
	timing:
	  sqlite: ./timings.db

# Keys and Overrides

Keys may be dotted paths ("parallel.mode"). Load applies environment
variables starting with FLOWCOMPOSE_ on top of the file; the rest of the
name is lower-cased and split on "__", so FLOWCOMPOSE_PARALLEL__FAIL_FAST=true
sets parallel.fail_fast.

# Type Coercion

Duration accepts strings ("30s"), numbers (seconds) and time.Duration.
Int accepts float64 values without a fractional part, which is what JSON
decoding produces, and decimal strings. Bool accepts strconv.ParseBool
strings.

# Thread Safety

Config is safe for concurrent read access. The underlying map is not
modified after creation.
*/
package config
