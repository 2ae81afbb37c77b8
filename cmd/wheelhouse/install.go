package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/arthur-debert/wheelhouse/pkg/config"
	"github.com/arthur-debert/wheelhouse/pkg/errors"
	"github.com/arthur-debert/wheelhouse/pkg/install"
	"github.com/arthur-debert/wheelhouse/pkg/linker"
	"github.com/arthur-debert/wheelhouse/pkg/logging"
)

var (
	installDest        string
	installPython      string
	installLinkMode    string
	installInstaller   string
	installRelocatable bool
	installRequested   bool
	installParallel    int
	installDirectURL   string
)

var installCmd = &cobra.Command{
	Use:   "install [wheel-dirs...]",
	Short: "Install unpacked wheels into an environment",
	Long: `Install one or more unpacked wheels into the target environment.

Each argument is the directory of an unpacked wheel whose base name is the
wheel filename without the .whl extension, e.g.
/path/to/cache/foo-1.0.0-py3-none-any.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.GetLogger("cmd.install")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		applyInstallFlags(cmd, cfg)

		mode, err := linker.ParseMode(cfg.LinkMode)
		if err != nil {
			return err
		}
		major, minor, err := parsePythonVersion(installPython)
		if err != nil {
			return err
		}
		layout := install.NewVenvLayout(installDest, major, minor)

		var directURL *install.DirectURL
		if installDirectURL != "" {
			directURL = &install.DirectURL{}
			if err := json.Unmarshal([]byte(installDirectURL), directURL); err != nil {
				return errors.Wrap(err, errors.ErrInvalidInput, "invalid --direct-url payload")
			}
		}

		requests := make([]install.Request, 0, len(args))
		for _, dir := range args {
			requests = append(requests, install.Request{
				WheelDir: dir,
				Filename: filepath.Base(dir) + ".whl",
				Options: install.Options{
					LinkMode:  mode,
					DirectURL: directURL,
					Installer: cfg.Installer,
					Requested: installRequested,
				},
			})
		}

		logger.Info().
			Int("wheels", len(requests)).
			Str("linkMode", mode.String()).
			Str("dest", installDest).
			Msg("Starting installation")

		if err := install.All(layout, cfg.Relocatable, requests, cfg.Parallel); err != nil {
			return err
		}

		pterm.Success.Printf("Installed %d wheel(s) into %s\n", len(requests), installDest)
		return nil
	},
}

func init() {
	installCmd.Flags().StringVar(&installDest, "dest", "", "Environment root to install into (required)")
	installCmd.Flags().StringVar(&installPython, "python-version", "3.12", "Python version of the environment, e.g. 3.12")
	installCmd.Flags().StringVar(&installLinkMode, "link-mode", "", "File strategy: clone, copy, hardlink or symlink")
	installCmd.Flags().StringVar(&installInstaller, "installer", "", "Name written to INSTALLER files")
	installCmd.Flags().BoolVar(&installRelocatable, "relocatable", false, "Generate scripts independent of the environment path")
	installCmd.Flags().BoolVar(&installRequested, "requested", false, "Mark the packages as directly requested")
	installCmd.Flags().IntVar(&installParallel, "parallel", 0, "Maximum concurrent wheel installations")
	installCmd.Flags().StringVar(&installDirectURL, "direct-url", "", "PEP 610 direct_url.json payload (raw JSON)")
	_ = installCmd.MarkFlagRequired("dest")
}

// applyInstallFlags layers explicitly set flags over the loaded config.
func applyInstallFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("link-mode") {
		cfg.LinkMode = installLinkMode
	}
	if cmd.Flags().Changed("installer") {
		cfg.Installer = installInstaller
	}
	if cmd.Flags().Changed("parallel") {
		cfg.Parallel = installParallel
	}
	if cmd.Flags().Changed("relocatable") {
		cfg.Relocatable = installRelocatable
	}
}

func parsePythonVersion(s string) (int, int, error) {
	majorStr, minorStr, found := strings.Cut(s, ".")
	if !found {
		return 0, 0, errors.Newf(errors.ErrInvalidInput, "invalid python version %q, expected e.g. 3.12", s)
	}
	major, err := strconv.Atoi(majorStr)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid python major version %q: %w", majorStr, err)
	}
	minor, err := strconv.Atoi(minorStr)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid python minor version %q: %w", minorStr, err)
	}
	return major, minor, nil
}
