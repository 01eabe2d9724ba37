// Weave CI/CD
//
// Package main runs the weave tests, lint checks and release builds in
// containers, locally and in GitHub actions.
package main

import (
	"context"
	"errors"
	"fmt"

	"dagger/weave/internal/dagger"
)

// Weave is the weave CI/CD pipeline.
type Weave struct {
	// +private
	Source *dagger.Directory
}

func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".weave", "build", "tmp", "_examples"]
	source *dagger.Directory,
) *Weave {
	return &Weave{Source: source}
}

// goContainer is a Debian Go container with CGO enabled and the sqlite
// headers installed. go-sqlite3 and sqlite-vec both need them.
func (w *Weave) goContainer() *dagger.Container {
	return dag.Container().
		From("golang:1.25-bookworm").
		WithExec([]string{"apt-get", "update"}).
		WithExec([]string{"apt-get", "install", "-y", "gcc", "libsqlite3-dev"}).
		WithEnvVariable("CGO_ENABLED", "1").
		WithEnvVariable("PATH", "/go/bin:$PATH", dagger.ContainerWithEnvVariableOpts{Expand: true}).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("weave-go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("weave-go-build")).
		WithWorkdir("/src").
		WithDirectory("/src", w.Source)
}

// Test runs the unit tests with ginkgo's go test entry points.
func (w *Weave) Test(ctx context.Context) (string, error) {
	return w.goContainer().
		WithExec([]string{"go", "test", "-race", "./..."}).
		Stdout(ctx)
}

// CheckGoModTidy fails when "go mod tidy" changes go.mod or go.sum.
//
// +check
func (w *Weave) CheckGoModTidy(ctx context.Context) (string, error) {
	out, err := w.goContainer().
		WithExec([]string{"cp", "go.mod", "go.mod.HEAD"}).
		WithExec([]string{"cp", "go.sum", "go.sum.HEAD"}).
		WithExec([]string{"go", "mod", "tidy"}).
		WithExec([]string{
			"sh", "-c",
			"diff -u go.mod.HEAD go.mod && diff -u go.sum.HEAD go.sum",
		}).
		Stdout(ctx)

	var e *dagger.ExecError
	if errors.As(err, &e) {
		return "", fmt.Errorf("go.mod or go.sum are not tidy: run 'go mod tidy'\n\n%s", e.Stdout)
	} else if err != nil {
		return "", fmt.Errorf("unexpected error: %w", err)
	}

	return fmt.Sprintf("go.mod and go.sum are tidy: %s", out), nil
}
