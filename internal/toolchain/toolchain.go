// Package toolchain shells out to the platform-specific build tools
// spec.md §1 names as external collaborators (Xcode, Gradle),
// implementing livesync.BuildRunner. Grounded on the teacher's own
// xcodebuild invocation in internal/preview/build.go: args assembled
// into a slice, run via exec.Command(...).CombinedOutput(), a
// non-zero exit wrapped with the combined output attached for
// diagnosis.
package toolchain

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/m-saito/nsbuild/internal/livesync"
)

// CmdRunner abstracts the one *exec.Cmd method toolchain needs, for
// testability (teacher's idb.CmdRunner/Commander split).
type CmdRunner interface {
	CombinedOutput() ([]byte, error)
}

// Commander abstracts exec.CommandContext.
type Commander interface {
	Command(ctx context.Context, name string, args ...string) CmdRunner
}

// execCommander is the production Commander.
type execCommander struct{}

func (execCommander) Command(ctx context.Context, name string, args ...string) CmdRunner {
	return exec.CommandContext(ctx, name, args...)
}

// NewCommander returns the production, exec.CommandContext-backed
// Commander.
func NewCommander() Commander { return execCommander{} }

// XcodeProject identifies the project or workspace and scheme xcodebuild
// should build.
type XcodeProject struct {
	ProjectPath     string // one of ProjectPath/WorkspacePath set
	WorkspacePath   string
	Scheme          string
	Configuration   string
	DerivedDataPath string
	Destination     string // e.g. "generic/platform=iOS Simulator"
}

func (p XcodeProject) args() []string {
	var args []string
	if p.WorkspacePath != "" {
		args = append(args, "-workspace", p.WorkspacePath)
	} else {
		args = append(args, "-project", p.ProjectPath)
	}
	args = append(args, "-scheme", p.Scheme)
	if p.Configuration != "" {
		args = append(args, "-configuration", p.Configuration)
	}
	if p.DerivedDataPath != "" {
		args = append(args, "-derivedDataPath", p.DerivedDataPath)
	}
	destination := p.Destination
	if destination == "" {
		destination = "generic/platform=iOS Simulator"
	}
	args = append(args, "-destination", destination)
	return args
}

// GradleProject identifies the Android project directory and assemble
// task gradlew should run.
type GradleProject struct {
	ProjectDir string
	Task       string // e.g. "assembleDebug"
}

// Builder dispatches Build to xcodebuild or gradlew depending on the
// requested platform, implementing livesync.BuildRunner.
type Builder struct {
	Commander Commander
	IOS       XcodeProject
	Android   GradleProject
}

// Build runs the configured build tool for platform.
func (b *Builder) Build(ctx context.Context, platform livesync.Platform) error {
	switch platform {
	case livesync.PlatformIOS:
		return b.buildIOS(ctx)
	case livesync.PlatformAndroid:
		return b.buildAndroid(ctx)
	default:
		return fmt.Errorf("toolchain: unknown platform %v", platform)
	}
}

func (b *Builder) buildIOS(ctx context.Context) error {
	args := append([]string{"build"}, b.IOS.args()...)
	out, err := b.Commander.Command(ctx, "xcodebuild", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("xcodebuild build failed: %w\n%s", err, out)
	}
	return nil
}

func (b *Builder) buildAndroid(ctx context.Context) error {
	gradlew := filepath.Join(b.Android.ProjectDir, "gradlew")
	task := b.Android.Task
	if task == "" {
		task = "assembleDebug"
	}
	out, err := b.Commander.Command(ctx, gradlew, task).CombinedOutput()
	if err != nil {
		return fmt.Errorf("gradlew %s failed: %w\n%s", task, err, out)
	}
	return nil
}
