package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveDefaults(t *testing.T) {
	dir := t.TempDir()
	flags := Resolve(dir, Overrides{})
	if flags.Bundle || flags.Release || flags.SyncAllFiles {
		t.Fatalf("expected all-false defaults, got %+v", flags)
	}
	if !flags.LiveEdit {
		t.Fatal("expected liveEdit to default true")
	}
	if flags.Device != "" {
		t.Fatalf("expected empty default device, got %q", flags.Device)
	}
}

func TestResolveRCFallsThroughBelowFlag(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, rcFileName), "NSBUILD_DEVICE=rc-device\nNSBUILD_BUNDLE=true\n")

	flags := Resolve(dir, Overrides{})
	if flags.Device != "rc-device" || !flags.Bundle {
		t.Fatalf("expected .nsbuildrc values to apply, got %+v", flags)
	}

	override := "flag-device"
	flags = Resolve(dir, Overrides{Device: &override})
	if flags.Device != "flag-device" {
		t.Fatalf("expected the flag override to win over .nsbuildrc, got %q", flags.Device)
	}
}

func TestResolveDotEnvBeatsRC(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, rcFileName), "NSBUILD_DEVICE=rc-device\n")
	writeFile(t, filepath.Join(dir, ".env"), "NSBUILD_DEVICE=env-device\n")

	flags := Resolve(dir, Overrides{})
	if flags.Device != "env-device" {
		t.Fatalf("expected .env to beat .nsbuildrc, got %q", flags.Device)
	}
}

func TestReadRCIgnoresCommentsAndMissingFile(t *testing.T) {
	dir := t.TempDir()
	if rc := ReadRC(dir); len(rc) != 0 {
		t.Fatalf("expected empty map for a missing file, got %v", rc)
	}

	writeFile(t, filepath.Join(dir, rcFileName), "# a comment\nAPP_NAME=demo\n\nNSBUILD_RELEASE=true\n")
	rc := ReadRC(dir)
	if rc["APP_NAME"] != "demo" || rc["NSBUILD_RELEASE"] != "true" {
		t.Fatalf("unexpected parse result: %v", rc)
	}
}
