// Package config resolves nsbuild's runtime configuration flags
// (spec.md §6: "bundle, release, device, liveEdit, syncAllFiles") in
// priority flag > env > .env > .nsbuildrc > default, generalizing the
// teacher's ResolveAppName fallback order (formerly
// internal/platform/config.go) across every flag instead of just
// APP_NAME.
package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const rcFileName = ".nsbuildrc"

// Flags are the core's consumed configuration values (spec.md §6).
type Flags struct {
	Bundle       bool
	Release      bool
	Device       string
	LiveEdit     bool
	SyncAllFiles bool
}

// Overrides carries the values actually supplied on the command line;
// a zero-value field means "not set on the flag", so Resolve can fall
// through to env/.env/.nsbuildrc for that field.
type Overrides struct {
	Bundle       *bool
	Release      *bool
	Device       *string
	LiveEdit     *bool
	SyncAllFiles *bool
}

// Resolve layers flag overrides over the process environment, a
// `.env` file (loaded via godotenv), and the `.nsbuildrc` KEY=VALUE
// file in dir, in that priority order.
func Resolve(dir string, overrides Overrides) Flags {
	env := loadEnv(dir)
	rc := ReadRC(dir)

	return Flags{
		Bundle:       resolveBool(overrides.Bundle, env, rc, "NSBUILD_BUNDLE", false),
		Release:      resolveBool(overrides.Release, env, rc, "NSBUILD_RELEASE", false),
		Device:       resolveString(overrides.Device, env, rc, "NSBUILD_DEVICE", ""),
		LiveEdit:     resolveBool(overrides.LiveEdit, env, rc, "NSBUILD_LIVE_EDIT", true),
		SyncAllFiles: resolveBool(overrides.SyncAllFiles, env, rc, "NSBUILD_SYNC_ALL_FILES", false),
	}
}

// ReadRC parses the `.nsbuildrc` file under dir and returns its
// KEY=VALUE pairs. Lines starting with `#` are comments. Returns an
// empty map if the file is absent or unreadable, mirroring the
// teacher's ReadRC tolerance for a missing `.axerc`.
func ReadRC(dir string) map[string]string {
	m := map[string]string{}
	f, err := os.Open(filepath.Join(dir, rcFileName)) //nolint:gosec // path is constructed internally.
	if err != nil {
		return m
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok {
			m[k] = v
		}
	}
	return m
}

func loadEnv(dir string) map[string]string {
	env, err := godotenv.Read(filepath.Join(dir, ".env"))
	if err != nil {
		return map[string]string{}
	}
	return env
}

func resolveBool(override *bool, env, rc map[string]string, key string, def bool) bool {
	if override != nil {
		return *override
	}
	if v, ok := os.LookupEnv(key); ok {
		return parseBool(v, def)
	}
	if v, ok := env[key]; ok {
		return parseBool(v, def)
	}
	if v, ok := rc[key]; ok {
		return parseBool(v, def)
	}
	return def
}

func resolveString(override *string, env, rc map[string]string, key, def string) string {
	if override != nil {
		return *override
	}
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	if v, ok := env[key]; ok {
		return v
	}
	if v, ok := rc[key]; ok {
		return v
	}
	return def
}

func parseBool(v string, def bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
