package inventory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-saito/nsbuild/internal/filestore"
	"github.com/m-saito/nsbuild/internal/manifest"
	"github.com/m-saito/nsbuild/internal/pkggraph"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBuildAppExcludesAppResources(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "app", "main.js"), "console.log(1)")
	writeFile(t, filepath.Join(root, "app", "views", "home.xml"), "<Page/>")
	writeFile(t, filepath.Join(root, "app", "App_Resources", "ios", "Info.plist"), "<plist/>")

	g := &pkggraph.Graph{App: &pkggraph.Package{Kind: pkggraph.KindApp, NativeFiles: map[string][]pkggraph.File{}}, Dependencies: map[string]*pkggraph.Package{}}

	w := &Walker{Store: filestore.New(), ProjectRoot: root, Platforms: []string{"ios", "android"}}
	if err := w.Build(g); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(g.App.ScriptFiles) != 2 {
		t.Fatalf("expected 2 app script files, got %d: %+v", len(g.App.ScriptFiles), g.App.ScriptFiles)
	}
	for _, f := range g.App.ScriptFiles {
		if f.Name == "Info.plist" {
			t.Fatal("App_Resources must be excluded from app script files")
		}
	}
	if len(g.App.NativeFiles["ios"]) != 1 || g.App.NativeFiles["ios"][0].Name != "Info.plist" {
		t.Fatalf("expected Info.plist under app.NativeFiles[ios], got %+v", g.App.NativeFiles["ios"])
	}
	if len(g.App.NativeFiles["android"]) != 0 {
		t.Fatalf("expected no android native files, got %+v", g.App.NativeFiles["android"])
	}

	var sawViewsDir bool
	for _, d := range g.App.Directories {
		if d == "views"+string(filepath.Separator) {
			sawViewsDir = true
		}
	}
	if !sawViewsDir {
		t.Fatalf("expected views/ in app directories, got %v", g.App.Directories)
	}
}

func TestWalkPackageTreeSkipsNodeModulesAndPlatforms(t *testing.T) {
	root := t.TempDir()
	pkg := &pkggraph.Package{
		Kind:        pkggraph.KindPackage,
		Name:        "foo",
		Path:        filepath.Join("node_modules", "foo"),
		Availability: pkggraph.Available,
		NativeFiles: map[string][]pkggraph.File{},
	}
	pkg.Manifest.Framework = &manifest.Framework{ID: "org.example.foo", Platforms: map[string]string{"ios": "1.0.0"}}
	g := &pkggraph.Graph{
		App:          &pkggraph.Package{Kind: pkggraph.KindApp, NativeFiles: map[string][]pkggraph.File{}},
		Dependencies: map[string]*pkggraph.Package{"foo": pkg},
	}

	pkgRoot := filepath.Join(root, pkg.Path)
	writeFile(t, filepath.Join(pkgRoot, "index.js"), "module.exports = {}")
	writeFile(t, filepath.Join(pkgRoot, "node_modules", "bar", "index.js"), "module.exports = {}")
	writeFile(t, filepath.Join(pkgRoot, "platforms", "ios", "Foo.swift"), "class Foo {}")

	w := &Walker{Store: filestore.New(), ProjectRoot: root, Platforms: []string{"ios"}}
	if err := w.Build(g); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(pkg.ScriptFiles) != 1 || pkg.ScriptFiles[0].Name != "index.js" {
		t.Fatalf("expected only index.js in foo's script files, got %+v", pkg.ScriptFiles)
	}
}

func TestWalkPackageTreeSpawnsNestedPackage(t *testing.T) {
	root := t.TempDir()
	pkg := &pkggraph.Package{
		Kind:         pkggraph.KindPackage,
		Name:         "foo",
		Path:         filepath.Join("node_modules", "foo"),
		Availability: pkggraph.Available,
		NativeFiles:  map[string][]pkggraph.File{},
	}
	g := &pkggraph.Graph{
		App:          &pkggraph.Package{Kind: pkggraph.KindApp, NativeFiles: map[string][]pkggraph.File{}},
		Dependencies: map[string]*pkggraph.Package{"foo": pkg},
	}

	pkgRoot := filepath.Join(root, pkg.Path)
	writeFile(t, filepath.Join(pkgRoot, "index.js"), "module.exports = {}")
	writeFile(t, filepath.Join(pkgRoot, "vendor", "package.json"), `{"name":"vendored-thing","version":"1.0.0"}`)
	writeFile(t, filepath.Join(pkgRoot, "vendor", "lib.js"), "module.exports = {}")

	w := &Walker{Store: filestore.New(), ProjectRoot: root}
	if err := w.Build(g); err != nil {
		t.Fatalf("Build: %v", err)
	}

	nested, ok := g.Dependencies["vendored-thing"]
	if !ok {
		t.Fatal("expected vendored-thing to be spawned as a Nested package")
	}
	if nested.Kind != pkggraph.KindNested {
		t.Fatalf("nested.Kind = %v, want KindNested", nested.Kind)
	}
	if len(nested.ScriptFiles) != 1 || nested.ScriptFiles[0].Name != "lib.js" {
		t.Fatalf("expected lib.js under the nested package, got %+v", nested.ScriptFiles)
	}
	if len(pkg.ScriptFiles) != 1 || pkg.ScriptFiles[0].Name != "index.js" {
		t.Fatalf("expected foo's own scope to keep only index.js, got %+v", pkg.ScriptFiles)
	}
}

func TestWalkPackageTreeCollisionDemotesParent(t *testing.T) {
	root := t.TempDir()
	existing := &pkggraph.Package{Kind: pkggraph.KindPackage, Name: "dup", Availability: pkggraph.Available, NativeFiles: map[string][]pkggraph.File{}}
	pkg := &pkggraph.Package{
		Kind:         pkggraph.KindPackage,
		Name:         "foo",
		Path:         filepath.Join("node_modules", "foo"),
		Availability: pkggraph.Available,
		NativeFiles:  map[string][]pkggraph.File{},
	}
	g := &pkggraph.Graph{
		App: &pkggraph.Package{Kind: pkggraph.KindApp, NativeFiles: map[string][]pkggraph.File{}},
		Dependencies: map[string]*pkggraph.Package{
			"foo": pkg,
			"dup": existing,
		},
	}

	pkgRoot := filepath.Join(root, pkg.Path)
	writeFile(t, filepath.Join(pkgRoot, "vendor", "package.json"), `{"name":"dup","version":"1.0.0"}`)
	writeFile(t, filepath.Join(pkgRoot, "vendor", "lib.js"), "module.exports = {}")

	w := &Walker{Store: filestore.New(), ProjectRoot: root}
	if err := w.Build(g); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if pkg.Availability != pkggraph.ShadowedByDiverged {
		t.Fatalf("foo.Availability = %v, want ShadowedByDiverged after collision", pkg.Availability)
	}
	if g.Dependencies["dup"] != existing {
		t.Fatal("the existing dup entry must not be replaced by the colliding nested package")
	}
}
