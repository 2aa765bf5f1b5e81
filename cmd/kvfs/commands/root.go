// Package commands implements the kvfs command line.
package commands

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/absfs/kvfs"
	"github.com/absfs/kvfs/config"
)

// NewRootCmd returns the kvfs command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "kvfs",
		Short: "Inspect and modify a kvfs filesystem",
		Long: `kvfs operates on a virtual filesystem stored in a key-value backend
(memory, bolt, badger, redis, s3 or a host directory).

Every setting can be overridden with KVFS_<SECTION>_<KEY> environment
variables, for example KVFS_BACKEND_TYPE=bolt KVFS_BACKEND_BOLT_PATH=fs.db.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/kvfs/config.yaml)")
	root.CompletionOptions.DisableDefaultCmd = true

	s := &session{cfgFile: &cfgFile}
	root.AddCommand(
		newLsCmd(s),
		newCatCmd(s),
		newPutCmd(s),
		newMkdirCmd(s),
		newRmCmd(s),
		newStatCmd(s),
		newLnCmd(s),
		newReadlinkCmd(s),
		newChmodCmd(s),
		newMvCmd(s),
		newTreeCmd(s),
	)
	return root
}

// session opens the configured filesystem for the duration of one command.
type session struct {
	cfgFile *string
}

// run loads configuration, syncs the storage, calls fn and flushes every
// write before returning.
func (s *session) run(cmd *cobra.Command, fn func(ctx context.Context, fs *kvfs.AsyncFS) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(*s.cfgFile)
	if err != nil {
		return err
	}
	log, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	log.SetOutput(cmd.ErrOrStderr())

	backend, closer, err := config.OpenBackend(ctx, cfg.Backend)
	if err != nil {
		return errors.Wrap(err, "opening backend")
	}
	defer func() {
		if cerr := closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	storage, err := kvfs.Open(ctx, backend, cfg.StorageOptions(log)...)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"backend": cfg.Backend.Type,
		"inodes":  storage.Stats().Size,
	}).Debug("filesystem opened")

	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.FlushTimeout)
		defer cancel()
		if cerr := storage.Close(flushCtx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return fn(ctx, kvfs.NewAsyncFS(storage))
}
