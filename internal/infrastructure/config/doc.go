// Package config loads and validates the dormlock gateway configuration.
//
// Configuration comes from three layers, each overriding the last:
// hardcoded defaults, a YAML file, and DORMLOCK_* environment variables.
// A .env file in the working directory is honoured for the environment
// layer so secrets stay out of the YAML file.
package config
