package cmd

import (
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-rawimage/pkg/app"
	"github.com/deploymenttheory/go-rawimage/pkg/app/image"
)

var (
	geometryDrive      int
	geometryDevicePath string
	geometryEmulate    bool
)

var geometryCmd = &cobra.Command{
	Use:   "geometry",
	Short: "Show the drive geometry the imager would use",
	Long: `Read the drive parameter table and the identify data, reconcile them
and print both readings with the effective geometry. No file is created.

Examples:
  # Probe the first disk
  go-rawimage geometry

  # Check what an override would produce
  go-rawimage geometry --drive 1 --cylinders 980 -o json`,

	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runGeometry(cmd)
	},
}

func init() {
	rootCmd.AddCommand(geometryCmd)

	geometryCmd.Flags().IntVarP(&geometryDrive, "drive", "d", 0, "drive ordinal (0 is the first disk)")
	geometryCmd.Flags().StringVar(&geometryDevicePath, "device-path", "", "explicit device node, overrides --drive mapping")
	geometryCmd.Flags().BoolVar(&geometryEmulate, "emulate", false, "probe the emulated device described in the config file")
	addGeometryFlags(geometryCmd)
}

func runGeometry(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	overrides, err := overridesFromFlags(cmd)
	if err != nil {
		return err
	}

	ctx := newAppContext(cmd)
	defer ctx.Logger.Sync()

	response, err := image.Probe(ctx, &image.ProbeRequest{
		Drive:         geometryDrive,
		DevicePath:    geometryDevicePath,
		DevicePattern: cfg.DevicePattern,
		Overrides:     overrides,
		Emulate:       geometryEmulate,
		Fixture:       cfg.Emulate,
	})
	if err != nil {
		return err
	}

	if err := image.FormatProbe(ctx.Out, response, ctx.OutputFormat); err != nil {
		return err
	}
	if !response.Valid {
		return app.NewError(app.ErrCodeGeometry, "geometry is incomplete", nil)
	}
	return nil
}
