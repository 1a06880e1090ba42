package reconciler

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-saito/nsbuild/internal/delta"
	"github.com/m-saito/nsbuild/internal/filestore"
	"github.com/m-saito/nsbuild/internal/pkggraph"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeManifest(t *testing.T, path, version string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(`{"version":"`+version+`"}`), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestReconcileTargetRemovesOrphanAndAppliesIt(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "package.json"), "1.0.0")
	if err := os.MkdirAll(filepath.Join(root, "app"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "app", "main.js"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	appOut := filepath.Join(root, "out", "app")
	modulesOut := filepath.Join(root, "out", "modules")
	if err := os.MkdirAll(appOut, 0o755); err != nil {
		t.Fatal(err)
	}
	orphan := filepath.Join(appOut, "stale.js")
	if err := os.WriteFile(orphan, []byte("leftover"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := filestore.New()
	r := &Reconciler{
		cfg: Config{
			Store:       store,
			ProjectRoot: root,
			Targets: []Target{
				{Platform: "ios", Output: delta.Output{App: appOut, Modules: modulesOut}},
			},
		},
		logger: discardLogger(),
	}

	if err := r.reconcileTarget(r.cfg.Targets[0]); err != nil {
		t.Fatalf("reconcileTarget: %v", err)
	}

	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Fatalf("expected stale.js to be removed, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(appOut, "main.js")); err != nil {
		t.Fatalf("expected main.js to be copied into place: %v", err)
	}
}

func TestReconcileTargetNoDriftIsANoOp(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "package.json"), "1.0.0")
	if err := os.MkdirAll(filepath.Join(root, "app"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "app", "main.js"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	appOut := filepath.Join(root, "out", "app")
	modulesOut := filepath.Join(root, "out", "modules")
	if err := os.MkdirAll(appOut, 0o755); err != nil {
		t.Fatal(err)
	}
	// Pre-seed the output with a copy newer than the source so no drift
	// is detected.
	if err := os.WriteFile(filepath.Join(appOut, "main.js"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(filepath.Join(appOut, "main.js"), future, future); err != nil {
		t.Fatal(err)
	}

	store := filestore.New()
	r := &Reconciler{
		cfg: Config{
			Store:       store,
			ProjectRoot: root,
			Targets: []Target{
				{Platform: "ios", Output: delta.Output{App: appOut, Modules: modulesOut}},
			},
		},
		logger: discardLogger(),
	}

	if err := r.reconcileTarget(r.cfg.Targets[0]); err != nil {
		t.Fatalf("reconcileTarget: %v", err)
	}
	entries, err := os.ReadDir(appOut)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only main.js left in %s, got %v", appOut, entries)
	}
}

func TestApplyMkdirThenCopyThenRemove(t *testing.T) {
	root := t.TempDir()
	store := filestore.New()

	src := filepath.Join(root, "src.js")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	dstDir := filepath.Join(root, "out")
	dst := filepath.Join(dstDir, "src.js")
	stale := filepath.Join(root, "stale.js")
	if err := os.WriteFile(stale, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	staleDir := filepath.Join(root, "stale_dir")
	if err := os.MkdirAll(staleDir, 0o755); err != nil {
		t.Fatal(err)
	}

	d := &delta.Delta{
		Mkdir:  []string{dstDir},
		Copy:   map[string]pkggraph.File{dst: {AbsolutePath: src}},
		RmFile: []string{stale},
		RmDir:  []string{staleDir},
	}

	if err := Apply(store, d); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("expected %s to exist: %v", dst, err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected %s removed, err = %v", stale, err)
	}
	if _, err := os.Stat(staleDir); !os.IsNotExist(err) {
		t.Fatalf("expected %s removed, err = %v", staleDir, err)
	}
}
