package cmd

import (
	"fmt"

	"github.com/JakWai01/hookfs/internal/logging"
	"github.com/JakWai01/hookfs/pkg/device"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Show the FUSE device, creating it first if --device-number is set",
	RunE: func(cmd *cobra.Command, args []string) error {
		l := logging.NewJSONLogger(viper.GetInt(verboseFlag))

		if err := prepareDevice(l); err != nil {
			return err
		}

		dev, err := device.ReadDev(viper.GetString(deviceFlag))
		if err != nil {
			return err
		}

		fmt.Printf("%v %v:%v\n", viper.GetString(deviceFlag), unix.Major(dev), unix.Minor(dev))

		return nil
	},
}

// prepareDevice makes sure the configured FUSE device can be used before
// anything gets mounted.
func prepareDevice(l logging.StructuredLogger) error {
	path := viper.GetString(deviceFlag)

	if want := viper.GetUint64(deviceNumberFlag); want != 0 {
		if err := device.Ensure(path, want); err != nil {
			return err
		}
	}

	dev, err := device.ReadDev(path)
	if err != nil {
		return fmt.Errorf("FUSE device is not available: %w", err)
	}

	l.Debug("Device.Ready", map[string]interface{}{
		"path":  path,
		"major": unix.Major(dev),
		"minor": unix.Minor(dev),
	})

	return nil
}
