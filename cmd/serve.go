package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"harborsync/internal/activity"
	"harborsync/internal/daemon"
	"harborsync/internal/logger"
	"harborsync/internal/mirror"
	"harborsync/internal/status"
	"harborsync/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sync daemon and its HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()

		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return err
		}

		act, err := activity.Open(cfg.DataDir)
		if err != nil {
			return err
		}
		errlog := activity.OpenErrorLog(cfg.DataDir)

		board := status.NewBoard()
		manager := daemon.NewManager(board, st, act, errlog, mirror.DialSFTP)
		sched := daemon.NewScheduler(manager, st, board, act)
		auth := daemon.NewAuthenticator(st)

		srv := daemon.NewServer(manager, sched, st, act, errlog, auth, cfg.Port)
		srv.Start()

		// Seed the scheduler from the stored configuration so auto-sync
		// survives a restart.
		if sftpCfg, err := st.SftpConfig(); err != nil {
			logger.Log.Warn("failed to load stored sync config", zap.Error(err))
		} else {
			sched.UpdateConfig(sftpCfg)
			go sched.EnsureStartOnRestart()
		}

		logger.Log.Info("harborsync daemon ready",
			zap.Int("port", cfg.Port),
			zap.String("data_dir", cfg.DataDir))

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Log.Info("shutting down")
		sched.Shutdown()
		manager.StopActive()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
