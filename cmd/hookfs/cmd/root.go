package cmd

import (
	"fmt"
	"strings"

	"github.com/JakWai01/hookfs/pkg/device"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	verboseFlag      = "verbose"
	deviceFlag       = "device"
	deviceNumberFlag = "device-number"
)

var rootCmd = &cobra.Command{
	Use:   "hookfs",
	Short: "hookfs, a passthrough file-system for fault injection",
	Long: `hookfs mirrors an original directory tree at a mountpoint using FUSE.

Every request is forwarded to the original tree, which makes the mount a
place to observe and intercept file-system calls.`,
}

func Execute() error {
	rootCmd.PersistentFlags().IntP(verboseFlag, "v", 2, fmt.Sprintf("Verbosity level (default %v, one of %v)", 2, []int{0, 1, 2, 3, 4}))
	rootCmd.PersistentFlags().String(deviceFlag, device.DefaultPath, "Path of the FUSE character device")
	rootCmd.PersistentFlags().Uint64(deviceNumberFlag, 0, "Device number to create the FUSE device with if it is missing (0 leaves the device alone)")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return err
	}

	viper.SetEnvPrefix("hookfs")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(deviceCmd)
}
