package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/weave/internal/dagger"
)

const versionPkg = "github.com/papercomputeco/weave/pkg/utils"

// Build returns a directory with the weave binary for each linux arch.
// CGO is required, so darwin builds are done natively in the release job.
func (w *Weave) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	outputs := dag.Directory()

	for _, goarch := range []string{"amd64", "arm64"} {
		path := fmt.Sprintf("linux/%s/", goarch)

		build := w.goContainer().
			WithEnvVariable("GOARCH", goarch).
			WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path + "weave", "./cli/weave"})

		outputs = outputs.WithDirectory(path, build.Directory(path))
	}

	return outputs
}

// BuildRelease builds with the version, commit and build time linked in.
func (w *Weave) BuildRelease(
	ctx context.Context,
	version string,
	commit string,
) *dagger.Directory {
	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X '%s.Version=%s'", versionPkg, version),
		fmt.Sprintf("-X '%s.Sha=%s'", versionPkg, commit),
		fmt.Sprintf("-X '%s.Buildtime=%s'", versionPkg, time.Now().UTC().Format(time.RFC3339)),
	}

	return w.Build(ctx, strings.Join(ldflags, " "))
}
