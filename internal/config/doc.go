// Package config loads the bot configuration from an optional YAML file, a
// .env file and the process environment, in increasing order of precedence.
package config
