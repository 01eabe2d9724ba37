// Package initcmder provides the init command for initializing a local
// .weave directory in the current working directory.
package initcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/weave/pkg/config"
	"github.com/papercomputeco/weave/pkg/dotdir"
)

const configFile = "config.toml"

const presetFetchTimeout = 10 * time.Second

const initLongDesc string = `Initialize a new .weave/ directory in the current working directory.

Creates a local .weave/ directory that takes precedence over the default
~/.weave/ directory for the SQLite database, configuration and the last
batch report, and writes a config.toml with default values unless one
already exists.

--preset selects the analysis provider the config is tuned for: openai,
anthropic or ollama. An http(s) URL is fetched and used as config.toml.

Examples:
  weave init
  weave init --preset openai
  weave init --preset https://example.com/weave/config.toml`

const initShortDesc string = "Initialize a local .weave/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.Context(), cmd.OutOrStdout(), preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Config preset (openai, anthropic, ollama) or a URL to a config.toml")
	_ = cmd.RegisterFlagCompletionFunc("preset", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return config.ValidPresetNames(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runInit(ctx context.Context, w io.Writer, preset string) error {
	cfg, err := resolvePreset(ctx, preset)
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dotdir.DirName)

	info, err := os.Stat(dir)
	if err == nil && info.IsDir() {
		fmt.Fprintf(w, "Already initialized: %s\n", dir)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .weave directory: %w", err)
		}
		fmt.Fprintf(w, "Initialized .weave directory: %s\n", dir)
	}

	// An existing config is only replaced when a preset was asked for.
	if preset == "" {
		if _, err := os.Stat(filepath.Join(dir, configFile)); err == nil {
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("checking config: %w", err)
		}
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(w, "Wrote config: %s\n", cfger.GetTarget())
	return nil
}

// resolvePreset returns the config to write for preset: the defaults when
// empty, a named preset, or the config.toml served at an http(s) URL.
func resolvePreset(ctx context.Context, preset string) (*config.Config, error) {
	switch {
	case preset == "":
		return config.NewDefaultConfig(), nil
	case strings.HasPrefix(preset, "http://"), strings.HasPrefix(preset, "https://"):
		return fetchPreset(ctx, preset)
	default:
		return config.PresetConfig(preset)
	}
}

func fetchPreset(ctx context.Context, url string) (*config.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, presetFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating remote config request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading remote config: %w", err)
	}

	return config.ParseConfigTOML(data)
}
