package delta

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-saito/nsbuild/internal/filestore"
	"github.com/m-saito/nsbuild/internal/pkggraph"
)

func TestBuildDeltaAppAndDependency(t *testing.T) {
	g := &pkggraph.Graph{
		App: &pkggraph.Package{
			Kind:        pkggraph.KindApp,
			Directories: []string{"views" + string(filepath.Separator)},
			ScriptFiles: []pkggraph.File{{Path: "main.js", Name: "main.js"}},
		},
		Dependencies: map[string]*pkggraph.Package{
			"foo": {
				Kind:         pkggraph.KindPackage,
				Name:         "foo",
				Availability: pkggraph.Available,
				ScriptFiles: []pkggraph.File{
					{Path: "index.js", Name: "index.js"},
					{Path: "view.ios.js", Name: "view.ios.js"},
					{Path: "view.android.js", Name: "view.android.js"},
				},
			},
		},
	}

	p := &Planner{Store: filestore.New(), CurrentPlatform: "ios"}
	d := p.BuildDelta(g, Output{App: "out/app", Modules: "out/modules"})

	if _, ok := d.Copy[filepath.Join("out", "app", "main.js")]; !ok {
		t.Fatalf("expected app main.js in copy, got %v", d.Copy)
	}
	if _, ok := d.Copy[filepath.Join("out", "modules", "foo", "index.js")]; !ok {
		t.Fatalf("expected foo/index.js in copy, got %v", d.Copy)
	}
	if _, ok := d.Copy[filepath.Join("out", "modules", "foo", "view.js")]; !ok {
		t.Fatalf("expected platform-rewritten view.js in copy, got %v", d.Copy)
	}
	if _, ok := d.Copy[filepath.Join("out", "modules", "foo", "view.android.js")]; ok {
		t.Fatal("android-only file must be excluded when current platform is ios")
	}
	if len(d.Copy) != 3 {
		t.Fatalf("expected exactly 3 copy entries, got %d: %v", len(d.Copy), d.Copy)
	}

	var sawAppDir, sawModulesDir bool
	for _, m := range d.Mkdir {
		if m == filepath.Join("out", "app", "views")+string(filepath.Separator) {
			sawAppDir = true
		}
		if m == filepath.Join("out", "modules", "foo")+string(filepath.Separator) {
			sawModulesDir = true
		}
	}
	if !sawAppDir {
		t.Fatalf("expected out/app/views/ in mkdir, got %v", d.Mkdir)
	}
	if !sawModulesDir {
		t.Fatalf("expected out/modules/foo/ in mkdir, got %v", d.Mkdir)
	}
}

func TestRebuildDeltaDropsUpToDateCopiesAndAddsCleanup(t *testing.T) {
	root := t.TempDir()
	appOut := filepath.Join(root, "out", "app")
	modulesOut := filepath.Join(root, "out", "modules")
	if err := os.MkdirAll(appOut, 0o755); err != nil {
		t.Fatal(err)
	}

	upToDate := filepath.Join(appOut, "stale_but_current.js")
	if err := os.WriteFile(upToDate, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	// An orphaned file the desired delta has no copy entry for.
	orphan := filepath.Join(appOut, "leftover.js")
	if err := os.WriteFile(orphan, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	orphanDir := filepath.Join(appOut, "old")
	if err := os.MkdirAll(orphanDir, 0o755); err != nil {
		t.Fatal(err)
	}

	store := filestore.New()
	info, err := store.Stat(upToDate)
	if err != nil {
		t.Fatal(err)
	}

	d := newDelta()
	d.Copy[upToDate] = pkggraph.File{MTime: info.ModTime().UnixMilli() - int64(time.Second/time.Millisecond)}

	p := &Planner{Store: store}
	out, err := p.RebuildDelta(d, Output{App: appOut, Modules: modulesOut})
	if err != nil {
		t.Fatalf("RebuildDelta: %v", err)
	}

	if _, stillThere := out.Copy[upToDate]; stillThere {
		t.Fatal("up-to-date file must be dropped from copy")
	}
	var sawOrphan bool
	for _, f := range out.RmFile {
		if f == orphan {
			sawOrphan = true
		}
	}
	if !sawOrphan {
		t.Fatalf("expected leftover.js in rmfile, got %v", out.RmFile)
	}
	var sawOrphanDir bool
	for _, dd := range out.RmDir {
		if dd == orphanDir+string(filepath.Separator) {
			sawOrphanDir = true
		}
	}
	if !sawOrphanDir {
		t.Fatalf("expected old/ in rmdir, got %v", out.RmDir)
	}
}

func TestChangedScripts(t *testing.T) {
	d := newDelta()
	if d.ChangedScripts() {
		t.Fatal("empty delta must not report changed scripts")
	}
	d.Copy["x"] = pkggraph.File{}
	if !d.ChangedScripts() {
		t.Fatal("non-empty copy must report changed scripts")
	}
}
