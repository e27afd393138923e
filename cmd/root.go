package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/deploymenttheory/go-rawimage/internal/config"
	"github.com/deploymenttheory/go-rawimage/internal/geometry"
	"github.com/deploymenttheory/go-rawimage/pkg/app"
)

var (
	// Global output flags only
	verbose      bool
	quiet        bool
	outputFormat string
	configFile   string
)

var rootCmd = &cobra.Command{
	Use:   "go-rawimage",
	Short: "Sector-exact CHS imager for failing hard disks",
	Long: `go-rawimage copies a physical disk cylinder by cylinder into a raw image
file, keeping every byte at the offset of its physical sector.

Each track is read in one request. When that fails the track is read one
sector at a time, resetting the controller between retries. Unreadable
sectors are still written so later data stays aligned, and every unit is
recorded in an append-only operation log.

Commands:
  image       Copy a drive into a raw image file
  geometry    Show the drive geometry the imager would use
  audit       Summarize an operation log and list bad sectors`,
	Version:       "0.1.0-dev",
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(app.ExitCode(err))
	}
}

func init() {
	// Only global output control flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output except errors")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, json, yaml)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default searches ./rawimage.yaml, $HOME/.rawimage, /etc/rawimage)")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
}

// GetVerbose returns the verbose flag value
func GetVerbose() bool {
	return verbose
}

// GetQuiet returns the quiet flag value
func GetQuiet() bool {
	return quiet
}

// GetOutputFormat returns the output format
func GetOutputFormat() string {
	return outputFormat
}

// newAppContext builds the application context from the global flags.
func newAppContext(cmd *cobra.Command) *app.Context {
	ctx := app.NewContext()
	if cmdCtx := cmd.Context(); cmdCtx != nil {
		ctx = ctx.WithContext(cmdCtx)
	}
	ctx.OutputFormat = GetOutputFormat()
	ctx.Verbose = GetVerbose()
	ctx.Quiet = GetQuiet()
	ctx.Logger = app.NewLogger(ctx.Verbose, ctx.Quiet)
	return ctx
}

// loadConfig merges the config file and environment with any flags bound
// under the given keys.
func loadConfig(cmd *cobra.Command, bindings map[string]string) (*config.Config, error) {
	v := config.New(configFile)
	if err := bindFlags(v, cmd, bindings); err != nil {
		return nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, app.NewError(app.ErrCodeInvalidInput, "invalid configuration", err)
	}
	return cfg, nil
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, bindings map[string]string) error {
	for key, flag := range bindings {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}

// addGeometryFlags registers the per-field override flags.
func addGeometryFlags(cmd *cobra.Command) {
	cmd.Flags().Uint32P("cylinders", "c", 0, "override cylinder count")
	cmd.Flags().Uint32P("heads", "H", 0, "override head count")
	cmd.Flags().Uint32P("sectors", "s", 0, "override sectors per track")
}

// overridesFromFlags returns only the geometry fields set on the command line.
func overridesFromFlags(cmd *cobra.Command) (geometry.Overrides, error) {
	var o geometry.Overrides
	for name, dst := range map[string]**uint32{
		"cylinders": &o.Cylinders,
		"heads":     &o.Heads,
		"sectors":   &o.Sectors,
	} {
		if !cmd.Flags().Changed(name) {
			continue
		}
		v, err := cmd.Flags().GetUint32(name)
		if err != nil {
			return o, app.NewError(app.ErrCodeInvalidInput, "invalid --"+name, err)
		}
		*dst = &v
	}
	return o, nil
}
