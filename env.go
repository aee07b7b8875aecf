// FILE: env.go
// Package main – Environment helpers and credential loading.
//
// This file provides:
//   1) Small helpers to read environment variables with sane defaults
//      (strings, ints, floats, bools).
//   2) loadBotEnv(), which hydrates the process env from an optional .env
//      file via godotenv. Only API credentials and operational overrides
//      live there; strategy knobs come from config.yaml (see config.go).
//
// Notes:
//   • The bot never requires `export $(cat .env ...)`.
//   • Existing process env always wins over the .env file.
package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// --------- Env helpers (used across files) ---------

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "y", "yes":
		return true
	case "0", "false", "n", "no":
		return false
	default:
		return def
	}
}

// --------- .env loader (credentials only) ---------

// Keys consumed from the environment:
//
//	BACKPACK_API_KEY    – base64 ED25519 verifying key (API key)
//	BACKPACK_API_SECRET – base64 ED25519 seed (API secret)
//	BACKPACK_BASE_URL   – override for the REST endpoint (tests)
//	PORT                – metrics/health listen port
//	CONFIG_FILE         – path to config.yaml

// loadBotEnv hydrates the process env from path (default ".env") without
// overriding variables already set. A missing file is not an error.
func loadBotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}
