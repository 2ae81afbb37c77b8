package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/arthur-debert/wheelhouse/pkg/errors"
	"github.com/arthur-debert/wheelhouse/pkg/install"
	"github.com/arthur-debert/wheelhouse/pkg/logging"
)

var (
	uninstallDest   string
	uninstallPython string
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall [packages...]",
	Short: "Remove installed packages from an environment",
	Long: `Remove one or more installed packages, deleting every file their RECORD
manifests list and sweeping directories left empty.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.GetLogger("cmd.uninstall")

		major, minor, err := parsePythonVersion(uninstallPython)
		if err != nil {
			return err
		}
		layout := install.NewVenvLayout(uninstallDest, major, minor)

		for _, name := range args {
			distInfo, err := install.FindInstalled(layout.Scheme.Purelib, name)
			if err != nil {
				return err
			}
			if distInfo == "" {
				return errors.Newf(errors.ErrInvalidInput, "package %q is not installed", name)
			}

			report, err := install.Uninstall(distInfo)
			if err != nil {
				return err
			}
			logger.Info().
				Str("package", name).
				Int("files", report.FileCount).
				Int("dirs", report.DirCount).
				Msg("Uninstalled package")
			pterm.Success.Printf("Removed %s (%d files, %d directories)\n",
				name, report.FileCount, report.DirCount)
		}
		return nil
	},
}

func init() {
	uninstallCmd.Flags().StringVar(&uninstallDest, "dest", "", "Environment root to uninstall from (required)")
	uninstallCmd.Flags().StringVar(&uninstallPython, "python-version", "3.12", "Python version of the environment, e.g. 3.12")
	_ = uninstallCmd.MarkFlagRequired("dest")
}
