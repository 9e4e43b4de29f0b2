package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"

	"afdata/config"

	"go.uber.org/zap"
)

// DataDirectories are the directories a run writes into
type DataDirectories struct {
	Data      string // cached tag data, geocoding cache and the run ledger
	Bulk      string // bulk-load streams
	Pretty    string // pretty snapshots
	StatsJSON string // statistics NDJSON outputs
	StatsCSV  string // statistics CSV outputs
}

// DataDirectoriesFromConfig collects the directories named by cfg
func DataDirectoriesFromConfig(cfg *config.Config) DataDirectories {
	return DataDirectories{
		Data:      cfg.DataPaths.DataDir,
		Bulk:      cfg.Output.BulkDir,
		Pretty:    cfg.Output.PrettyDir,
		StatsJSON: cfg.Stats.OutJSON,
		StatsCSV:  cfg.Stats.OutCSV,
	}
}

func (d DataDirectories) all() []string {
	var out []string
	for _, dir := range []string{d.Data, d.Bulk, d.Pretty, d.StatsJSON, d.StatsCSV} {
		if dir != "" {
			out = append(out, dir)
		}
	}
	return out
}

// EnsureDataDirectories creates every directory and verifies it is writable
func EnsureDataDirectories(dirs DataDirectories, sugar *zap.SugaredLogger) error {
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}

	for _, dir := range dirs.all() {
		absPath, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("failed to resolve absolute path for %s: %w", dir, err)
		}

		if err := os.MkdirAll(absPath, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w\n"+
				"  Remediation: Ensure the parent directory exists and is writable\n"+
				"  Run 'mkdir -p %s && chmod 755 %s'", dir, err, absPath, absPath)
		}

		probe := filepath.Join(absPath, ".afdata_write_test")
		if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
			return fmt.Errorf("directory %s is not writable: %w\n"+
				"  Remediation: Run 'chmod -R u+w %s' or point the setting elsewhere", dir, err, absPath)
		}
		_ = os.Remove(probe)

		sugar.Debugw("Directory ready", "path", absPath)
	}
	return nil
}
