package deviceops

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-saito/nsbuild/internal/delta"
	"github.com/m-saito/nsbuild/internal/livesync"
	"github.com/m-saito/nsbuild/internal/toolchain"
)

type fakeCmd struct {
	out []byte
	err error
}

func (f fakeCmd) CombinedOutput() ([]byte, error) { return f.out, f.err }

type call struct {
	name string
	args []string
}

type fakeCommander struct {
	calls   []call
	outputs []fakeCmd // consumed in order, last one reused once exhausted
}

func (f *fakeCommander) Command(_ context.Context, name string, args ...string) toolchain.CmdRunner {
	f.calls = append(f.calls, call{name: name, args: args})
	idx := len(f.calls) - 1
	if idx < len(f.outputs) {
		return f.outputs[idx]
	}
	if len(f.outputs) == 0 {
		return fakeCmd{out: []byte("ok")}
	}
	return f.outputs[len(f.outputs)-1]
}

func TestStopIOSInvokesSimctlTerminate(t *testing.T) {
	fc := &fakeCommander{}
	o := New(Config{Commander: fc, IOSBundleID: "com.example.app"})
	if err := o.Stop(context.Background(), livesync.Device{ID: "sim-1", Platform: livesync.PlatformIOS}); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if fc.calls[0].name != "xcrun" {
		t.Fatalf("command = %q", fc.calls[0].name)
	}
	joined := strings.Join(fc.calls[0].args, " ")
	if !strings.Contains(joined, "terminate sim-1 com.example.app") {
		t.Fatalf("args = %q", joined)
	}
}

func TestStopIOSTreatsNotRunningAsSuccess(t *testing.T) {
	fc := &fakeCommander{outputs: []fakeCmd{{out: []byte("x"), err: errors.New("app is not running")}}}
	o := New(Config{Commander: fc, IOSBundleID: "com.example.app"})
	if err := o.Stop(context.Background(), livesync.Device{ID: "sim-1", Platform: livesync.PlatformIOS}); err != nil {
		t.Fatalf("Stop should tolerate not-running, got %v", err)
	}
}

func TestStopAndroidInvokesAMForceStop(t *testing.T) {
	fc := &fakeCommander{}
	o := New(Config{Commander: fc, AndroidPackageName: "com.example.app"})
	if err := o.Stop(context.Background(), livesync.Device{ID: "emulator-5554", Platform: livesync.PlatformAndroid}); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if fc.calls[0].name != "adb" {
		t.Fatalf("command = %q", fc.calls[0].name)
	}
	joined := strings.Join(fc.calls[0].args, " ")
	if !strings.Contains(joined, "force-stop com.example.app") {
		t.Fatalf("args = %q", joined)
	}
}

func TestInstallAndroidRunsAdbInstallR(t *testing.T) {
	fc := &fakeCommander{}
	o := New(Config{Commander: fc, AndroidPackageName: "com.example.app"})
	if err := o.Install(context.Background(), livesync.Device{ID: "emulator-5554", Platform: livesync.PlatformAndroid}, "/out/app.apk"); err != nil {
		t.Fatalf("Install: %v", err)
	}
	joined := strings.Join(fc.calls[0].args, " ")
	if !strings.Contains(joined, "install -r /out/app.apk") {
		t.Fatalf("args = %q", joined)
	}
}

func TestTransferFilesAndroidPushesUnderRemoteRoot(t *testing.T) {
	fc := &fakeCommander{}
	out := delta.Output{App: "/build/app"}
	o := New(Config{
		Commander:         fc,
		AndroidRemoteRoot: "/data/local/tmp/nsbuild",
		Outputs:           map[livesync.Platform]delta.Output{livesync.PlatformAndroid: out},
	})
	local := filepath.Join(out.App, "main.js")
	if err := o.TransferFiles(context.Background(), livesync.Device{ID: "emulator-5554", Platform: livesync.PlatformAndroid}, []string{local}); err != nil {
		t.Fatalf("TransferFiles: %v", err)
	}
	joined := strings.Join(fc.calls[0].args, " ")
	if !strings.Contains(joined, "push "+local+" /data/local/tmp/nsbuild/main.js") {
		t.Fatalf("args = %q", joined)
	}
}

func TestTransferFilesIOSCopiesIntoAppContainer(t *testing.T) {
	tmp := t.TempDir()
	container := filepath.Join(tmp, "container")
	if err := os.MkdirAll(container, 0o755); err != nil {
		t.Fatal(err)
	}
	appOut := filepath.Join(tmp, "build")
	if err := os.MkdirAll(filepath.Join(appOut, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	local := filepath.Join(appOut, "sub", "main.js")
	if err := os.WriteFile(local, []byte("console.log(1)"), 0o644); err != nil {
		t.Fatal(err)
	}

	fc := &fakeCommander{outputs: []fakeCmd{{out: []byte(container + "\n")}}}
	o := New(Config{
		Commander:   fc,
		IOSBundleID: "com.example.app",
		Outputs:     map[livesync.Platform]delta.Output{livesync.PlatformIOS: {App: appOut}},
	})

	dev := livesync.Device{ID: "sim-1", Platform: livesync.PlatformIOS, IsSimulator: true}
	if err := o.TransferFiles(context.Background(), dev, []string{local}); err != nil {
		t.Fatalf("TransferFiles: %v", err)
	}

	copied := filepath.Join(container, "sub", "main.js")
	data, err := os.ReadFile(copied)
	if err != nil {
		t.Fatalf("expected file copied to %s: %v", copied, err)
	}
	if string(data) != "console.log(1)" {
		t.Fatalf("copied content = %q", data)
	}

	// A second transfer must reuse the cached container path rather than
	// calling get_app_container again.
	if err := o.TransferFiles(context.Background(), dev, []string{local}); err != nil {
		t.Fatalf("second TransferFiles: %v", err)
	}
	getContainerCalls := 0
	for _, c := range fc.calls {
		if strings.Contains(strings.Join(c.args, " "), "get_app_container") {
			getContainerCalls++
		}
	}
	if getContainerCalls != 1 {
		t.Fatalf("get_app_container called %d times, want 1 (cached)", getContainerCalls)
	}
}

func TestRelativeToOutputRejectsPathOutsideEitherRoot(t *testing.T) {
	o := New(Config{Outputs: map[livesync.Platform]delta.Output{
		livesync.PlatformAndroid: {App: "/build/app", Modules: "/build/modules"},
	}})
	_, err := o.relativeToOutput(livesync.PlatformAndroid, "/somewhere/else/main.js")
	if err == nil {
		t.Fatal("expected error for path outside both output roots")
	}
}

func TestAndroidRefreshBroadcastsLivesyncAction(t *testing.T) {
	fc := &fakeCommander{}
	o := New(Config{Commander: fc, AndroidPackageName: "com.example.app"})
	if err := o.AndroidRefresh(context.Background(), livesync.Device{ID: "emulator-5554", Platform: livesync.PlatformAndroid}, nil); err != nil {
		t.Fatalf("AndroidRefresh: %v", err)
	}
	joined := strings.Join(fc.calls[0].args, " ")
	if !strings.Contains(joined, "com.example.app.LIVESYNC") {
		t.Fatalf("args = %q", joined)
	}
}

func TestBuildOutputDirAndroidFallsBackToConfiguredOutput(t *testing.T) {
	o := New(Config{Outputs: map[livesync.Platform]delta.Output{
		livesync.PlatformAndroid: {App: "/build/app"},
	}})
	dir, err := o.BuildOutputDir(livesync.Device{Platform: livesync.PlatformAndroid})
	if err != nil {
		t.Fatalf("BuildOutputDir: %v", err)
	}
	if dir != "/build/app" {
		t.Fatalf("dir = %q", dir)
	}
}
