package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deploymenttheory/go-rawimage/pkg/app/image"
)

var (
	// Device selection (image command only)
	imageDrive      int
	imageDevicePath string

	// Run control
	imageAssumeYes bool
	imageEmulate   bool
)

var imageCmd = &cobra.Command{
	Use:   "image <destination>",
	Short: "Copy a drive into a raw image file",
	Long: `Copy every track of a drive into a raw image file, cylinder-major and
head-minor. The destination is created only after the geometry has been
determined and confirmed.

Examples:
  # Image the first disk into drive0.img
  go-rawimage image drive0.img

  # Image the second disk, forcing 17 sectors per track
  go-rawimage image --drive 1 --sectors 17 drive1.img

  # Image an explicit device node without prompting
  go-rawimage image --device-path /dev/sdc --yes old.img

  # Rehearse against the emulated device from the config file
  go-rawimage image --emulate --progress markers test.img`,

	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runImage(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(imageCmd)

	// Device selection
	imageCmd.Flags().IntVarP(&imageDrive, "drive", "d", 0, "drive ordinal (0 is the first disk)")
	imageCmd.Flags().StringVar(&imageDevicePath, "device-path", "", "explicit device node, overrides --drive mapping")
	addGeometryFlags(imageCmd)

	// Log and copy tuning, bound over config values
	imageCmd.Flags().StringP("log", "l", "rawhdd.log", "operation log file (appended)")
	imageCmd.Flags().Int("max-attempts", 10, "reads per sector on the fallback path, first read included")
	imageCmd.Flags().String("progress", "bar", "progress display (bar, markers, none)")

	// Run control
	imageCmd.Flags().BoolVarP(&imageAssumeYes, "yes", "y", false, "skip the confirmation prompt")
	imageCmd.Flags().BoolVar(&imageEmulate, "emulate", false, "image the emulated device described in the config file")
}

func runImage(cmd *cobra.Command, destination string) error {
	cfg, err := loadConfig(cmd, map[string]string{
		"log_file":     "log",
		"max_attempts": "max-attempts",
		"progress":     "progress",
	})
	if err != nil {
		return err
	}

	overrides, err := overridesFromFlags(cmd)
	if err != nil {
		return err
	}

	// Create application context
	ctx := newAppContext(cmd)
	defer ctx.Logger.Sync()
	if ctx.Verbose {
		ctx.SetProgress(func(message string, percent int) {
			ctx.Log("progress", zap.Int("percent", percent), zap.String("detail", message))
		})
	}

	// Create imaging request
	request := &image.Request{
		Destination:   destination,
		Drive:         imageDrive,
		DevicePath:    imageDevicePath,
		DevicePattern: cfg.DevicePattern,
		Overrides:     overrides,
		LogFile:       cfg.LogFile,
		SyncLog:       cfg.SyncLog,
		SinkBuffer:    cfg.SinkBuffer,
		MaxAttempts:   cfg.MaxAttempts,
		Progress:      cfg.Progress,
		AssumeYes:     imageAssumeYes,
		Emulate:       imageEmulate,
		Fixture:       cfg.Emulate,
	}

	// Handle the request through application layer
	response, err := image.Handle(ctx, request)
	if response != nil && !ctx.Quiet {
		if ferr := image.FormatOutput(ctx.Out, response, ctx.OutputFormat); ferr != nil && err == nil {
			err = ferr
		}
	}
	return err
}
