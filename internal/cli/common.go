package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/danieljhkim/strata/internal/clock"
	"github.com/danieljhkim/strata/internal/config"
	"github.com/danieljhkim/strata/internal/engine"
	"github.com/danieljhkim/strata/internal/fsops"
	"github.com/danieljhkim/strata/internal/lock"
	"github.com/danieljhkim/strata/internal/logging"
	"github.com/danieljhkim/strata/internal/mounts"
	"github.com/danieljhkim/strata/internal/registry"
	"github.com/danieljhkim/strata/internal/unionfs"
)

// newMounter selects the union-mount backend. Tests replace it.
var newMounter = unionfs.New

// session is the configuration and logger of the running command.
type session struct {
	cfg *config.Config
	log *logrus.Logger
}

var current *session

// flagKeys maps global flags to configuration keys.
var flagKeys = map[string]string{
	"home":      config.KeyHome,
	"verbosity": config.KeyVerbosity,
	"config":    config.KeyConfigFile,
}

// loadSession resolves the configuration for cmd and builds the logger.
func loadSession(cmd *cobra.Command) (*session, error) {
	v := config.NewViper()
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(name)); err != nil {
			return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cmd.ErrOrStderr(), cfg.Verbosity)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"home":    cfg.Paths.Root,
		"backend": cfg.MountBackend,
		"config":  cfg.ConfigFile,
	}).Debug("loaded configuration")

	return &session{cfg: cfg, log: log}, nil
}

// newEngine creates a new engine with real implementations of all dependencies.
func newEngine() (*engine.Engine, error) {
	if current == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	cfg, log := current.cfg, current.log

	// Ensure directories exist
	if err := cfg.Paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	backend, err := newMounter(cfg.MountBackend, log)
	if err != nil {
		return nil, err
	}

	fs := fsops.NewOsFS()
	clk := &clock.RealClock{}
	reg := registry.NewFileRegistry(fs, clk, cfg.Paths.Layers, cfg.Paths.Names)
	tracker := mounts.NewTracker(fs, cfg.Paths.Mounts, backend, clk, log)
	locker := lock.NewFileLock(cfg.Paths.Lock, cfg.LockTimeout)

	return engine.New(reg, tracker, locker, fs, clk, log, cfg.Paths), nil
}

// addLayerFlag adds -l/--layer to a layer command.
func addLayerFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("layer", "l", "", "Layer reference (default: the layer mounted at the current directory)")
}

// layerRef builds the reference named by --layer, relative to the current
// directory.
func layerRef(cmd *cobra.Command) (engine.LayerRef, error) {
	ref, err := cmd.Flags().GetString("layer")
	if err != nil {
		return engine.LayerRef{}, err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return engine.LayerRef{}, fmt.Errorf("failed to get current directory: %w", err)
	}
	return engine.LayerRef{Ref: ref, CWD: cwd}, nil
}

// outputJSON outputs a value as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// promptConfirm prompts the user for a yes/no confirmation.
func promptConfirm(w io.Writer, r *bufio.Reader, prompt string) bool {
	_, _ = fmt.Fprintf(w, "%s (y/N): ", prompt)
	response, err := r.ReadString('\n')
	if err != nil && response == "" {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
