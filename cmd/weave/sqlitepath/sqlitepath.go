// Package sqlitepath resolves the SQLite database used by weave commands.
package sqlitepath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/weave/pkg/dotdir"
)

// DefaultFileName is the database file created in the .weave/ directory
// when no existing database is found.
const DefaultFileName = "weave.db"

// ResolveSQLitePath returns override when set, otherwise the first
// existing candidate database, otherwise weave.db in the resolved .weave/
// directory.
func ResolveSQLitePath(override, configDir string) (string, error) {
	if override = strings.TrimSpace(override); override != "" {
		return override, nil
	}

	for _, candidate := range sqliteCandidates() {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	dir, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return "", fmt.Errorf("resolving weave directory: %w", err)
	}
	return filepath.Join(dir, DefaultFileName), nil
}

func sqliteCandidates() []string {
	candidates := []string{
		DefaultFileName,
		filepath.Join(dotdir.DirName, DefaultFileName),
	}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, dotdir.DirName, DefaultFileName))
	}

	if xdgHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdgHome != "" {
		candidates = append(candidates, filepath.Join(xdgHome, "weave", DefaultFileName))
	}

	return candidates
}

const sqlitePathLongDesc string = `Print the SQLite database weave commands use.

Resolution order: --sqlite, storage.sqlite_path (config file or
WEAVE_STORAGE_SQLITE_PATH), an existing weave.db in the current directory,
./.weave/, ~/.weave/ or $XDG_DATA_HOME/weave/, and finally weave.db in the
resolved .weave/ directory.`

// NewSQLitePathCmd prints the resolved database path.
func NewSQLitePathCmd() *cobra.Command {
	var override string

	cmd := &cobra.Command{
		Use:   "sqlitepath",
		Short: "Print the resolved SQLite database path",
		Long:  sqlitePathLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			if override == "" {
				override = os.Getenv("WEAVE_STORAGE_SQLITE_PATH")
			}
			path, err := ResolveSQLitePath(override, configDir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&override, "sqlite", "s", "", "Path to SQLite database")

	return cmd
}
