package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JakWai01/hookfs/internal/logging"
	"github.com/JakWai01/hookfs/pkg/filesystem"
	"github.com/avast/retry-go/v4"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/timeutil"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	mountpointFlag = "mountpoint"
	originalFlag   = "original"
	workersFlag    = "workers"
	readOnlyFlag   = "read-only"
	debugFlag      = "debug"
)

var mountCmd = &cobra.Command{
	Use:   "mount",
	Short: "Mount an original directory tree on a given path",
	RunE: func(cmd *cobra.Command, args []string) error {
		l := logging.NewJSONLogger(viper.GetInt(verboseFlag))

		mountpoint := viper.GetString(mountpointFlag)
		original := viper.GetString(originalFlag)

		if mountpoint == "" || original == "" {
			log.Fatalf("You must set --%v and --%v.", mountpointFlag, originalFlag)
		}

		if err := prepareDevice(l); err != nil {
			return err
		}

		if err := os.MkdirAll(mountpoint, os.ModePerm); err != nil {
			return err
		}

		var backend afero.Fs = afero.NewOsFs()
		if viper.GetBool(readOnlyFlag) {
			backend = afero.NewReadOnlyFs(backend)
		}

		hfs, err := filesystem.NewHookFS(mountpoint, original, l, backend, timeutil.RealClock())
		if err != nil {
			return err
		}

		serve := filesystem.NewServer(hfs, l, viper.GetInt64(workersFlag), filesystem.NopHook{})

		cfg := &fuse.MountConfig{
			FSName:      "hookfs",
			Subtype:     "hookfs",
			ReadOnly:    viper.GetBool(readOnlyFlag),
			ErrorLogger: log.New(os.Stderr, "fuse: ", log.LstdFlags),
		}

		if viper.GetBool(debugFlag) {
			cfg.DebugLogger = log.New(os.Stderr, "fuse: ", 0)
		}

		mfs, err := fuse.Mount(mountpoint, serve, cfg)
		if err != nil {
			log.Fatalf("Mount: %v", err)
		}

		l.Info("HookFS.Mount", map[string]interface{}{
			"instance":   hfs.ID(),
			"mountpoint": hfs.Mountpoint(),
			"original":   hfs.Original(),
			"readOnly":   viper.GetBool(readOnlyFlag),
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		joined := make(chan error, 1)
		go func() {
			joined <- mfs.Join(context.Background())
		}()

		select {
		case err := <-joined:
			if err != nil {
				log.Fatalf("Join %v", err)
			}

			return nil
		case <-ctx.Done():
		}

		stats := hfs.Stats()
		l.Info("HookFS.Unmount", map[string]interface{}{
			"mountpoint": mountpoint,
			"inodes":     stats.Inodes,
			"openFiles":  stats.OpenFiles,
		})

		if err := unmount(l, mountpoint); err != nil {
			return err
		}

		if err := <-joined; err != nil {
			log.Fatalf("Join %v", err)
		}

		return nil
	},
}

// unmount retries while the kernel still reports the mount as busy, which
// happens when a process is inside the tree as the signal arrives.
func unmount(l logging.StructuredLogger, mountpoint string) error {
	return retry.Do(
		func() error {
			return fuse.Unmount(mountpoint)
		},
		retry.Attempts(5),
		retry.Delay(100*time.Millisecond),
		retry.MaxDelay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			l.Warn("HookFS.Unmount", map[string]interface{}{
				"mountpoint": mountpoint,
				"attempt":    n + 1,
				"error":      err.Error(),
			})
		}),
	)
}

func init() {
	mountCmd.PersistentFlags().String(mountpointFlag, "", "Path to mount the file-system on")
	mountCmd.PersistentFlags().String(originalFlag, "", "Directory tree to forward requests to")
	mountCmd.PersistentFlags().Int64(workersFlag, filesystem.DefaultWorkers, "Maximum number of requests served concurrently")
	mountCmd.PersistentFlags().Bool(readOnlyFlag, false, "Mount in read-only mode")
	mountCmd.PersistentFlags().Bool(debugFlag, false, "Log every FUSE message")

	if err := viper.BindPFlags(mountCmd.PersistentFlags()); err != nil {
		log.Fatal("could not bind flags:", err)
	}
}
