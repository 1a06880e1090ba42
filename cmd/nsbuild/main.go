// Command nsbuild drives the incremental rebuild + live-sync engine
// against a NativeScript-shaped project tree: resolving dependencies,
// materializing a per-platform output directory, and pushing changes
// to attached devices, per spec.md.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
