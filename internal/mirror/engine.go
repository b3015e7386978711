// Package mirror reconciles a local directory tree against a remote one
// reachable over an authenticated SFTP session, downloading only files that
// are new, differently sized, or modified after the run's cutoff.
package mirror

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"harborsync/internal/logger"
	"harborsync/internal/model"
	"harborsync/internal/status"
	"harborsync/internal/stop"
)

const chunkSize = 64 * 1024

var (
	// ErrMissingCredentials means the run was rejected before any network I/O.
	ErrMissingCredentials = errors.New("host, username, password, remote root, and local root are required")

	// ErrStopped marks a user-requested stop. It is a control-flow outcome,
	// not a failure.
	ErrStopped = errors.New("stopped by user")
)

type Engine struct {
	board *status.Board
	dial  Dialer

	// onTransfer and onError let the host persist records and durable error
	// lines without the engine knowing about storage.
	onTransfer func(model.TransferRecord)
	onError    func(msg string)

	connMu sync.Mutex
	conn   Session
}

func NewEngine(board *status.Board, dial Dialer, onTransfer func(model.TransferRecord), onError func(msg string)) *Engine {
	return &Engine{
		board:      board,
		dial:       dial,
		onTransfer: onTransfer,
		onError:    onError,
	}
}

type runState struct {
	stats model.SyncStats
}

// Run executes one mirror run. It returns ErrStopped when the stop signal
// fired mid-run, a connection error when the session could not be
// established, and aggregate stats otherwise. Per-file failures are recorded
// and counted but never abort the traversal.
func (e *Engine) Run(cfg model.SftpConfig, cutoff time.Time, sig *stop.Signal) (model.SyncStats, error) {
	if cfg.Host == "" || cfg.Username == "" || cfg.Password == "" || cfg.RemoteRoot == "" || cfg.LocalRoot == "" {
		return model.SyncStats{}, ErrMissingCredentials
	}

	logger.Log.Debug("mirror run connecting",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("user", cfg.Username))

	sess, err := e.dial(cfg)
	if err != nil {
		return model.SyncStats{}, fmt.Errorf("connection failed: %w", err)
	}
	e.storeConn(sess)
	defer e.closeConn()

	e.board.SetPhase(model.StateScanning, "Scanning remote tree…")

	remoteRoot := strings.TrimRight(cfg.RemoteRoot, "/")
	if remoteRoot == "" {
		remoteRoot = "/"
	}
	if err := os.MkdirAll(cfg.LocalRoot, 0755); err != nil {
		return model.SyncStats{}, fmt.Errorf("failed to create local root: %w", err)
	}

	run := &runState{}
	err = e.syncDirectory(sess, remoteRoot, cfg.LocalRoot, cfg.SkipSet(), cutoff, sig, run)

	if errors.Is(err, ErrStopped) || sig.Triggered() {
		return run.stats, ErrStopped
	}
	if err != nil {
		return run.stats, err
	}

	logger.Log.Info("mirror run completed",
		zap.Int("files", run.stats.FilesDownloaded),
		zap.Int64("bytes", run.stats.BytesDownloaded),
		zap.Int("errors", run.stats.Errors))

	return run.stats, nil
}

// Abort force-closes the live session so a blocked read unwinds. Safe to call
// from any goroutine, including when no run is active.
func (e *Engine) Abort() {
	e.closeConn()
}

func (e *Engine) storeConn(sess Session) {
	e.connMu.Lock()
	defer e.connMu.Unlock()
	e.conn = sess
}

func (e *Engine) closeConn() {
	e.connMu.Lock()
	sess := e.conn
	e.conn = nil
	e.connMu.Unlock()

	if sess != nil {
		_ = sess.Close()
	}
}

// syncDirectory walks one directory level. Listing failures are reported and
// skipped so one unreadable subtree never kills the whole run; only
// ErrStopped propagates upward.
func (e *Engine) syncDirectory(sess Session, remotePath, localPath string, skip map[string]struct{}, cutoff time.Time, sig *stop.Signal, run *runState) error {
	if sig.Triggered() {
		return ErrStopped
	}

	entries, err := sess.List(remotePath)
	if err != nil {
		e.reportError(fmt.Sprintf("cannot list %s: %v", remotePath, err))
		return nil
	}

	for _, entry := range entries {
		if sig.Triggered() {
			return ErrStopped
		}

		remoteItem := path.Join(remotePath, entry.Name)
		localItem := filepath.Join(localPath, entry.Name)

		if entry.IsDir {
			if _, skipped := skip[strings.ToLower(strings.TrimSpace(entry.Name))]; skipped {
				logger.Log.Debug("pruning folder", zap.String("path", remoteItem))
				continue
			}
			if err := e.syncDirectory(sess, remoteItem, localItem, skip, cutoff, sig, run); err != nil {
				return err
			}
			continue
		}

		// Size equality is the sole "already synced" signal; a same-sized
		// content change is knowingly missed.
		if sameSizeExists(localItem, entry.Size) {
			logger.Log.Debug("skipping, already present", zap.String("path", localItem))
			continue
		}
		if !entry.ModTime.After(cutoff) {
			logger.Log.Debug("skipping, older than cutoff",
				zap.String("path", remoteItem),
				zap.Time("mtime", entry.ModTime))
			continue
		}

		if err := e.downloadFile(sess, remoteItem, localItem, entry.Size, sig, run); err != nil {
			return err
		}
	}

	return nil
}

// downloadFile fetches one file through a .partial sibling and renames it
// over the destination on success. Returns non-nil only for ErrStopped.
func (e *Engine) downloadFile(sess Session, remoteFile, localFile string, size int64, sig *stop.Signal, run *runState) error {
	filename := path.Base(remoteFile)
	partial := localFile + ".partial"

	defer e.board.ClearTransfer()

	if err := os.MkdirAll(filepath.Dir(localFile), 0755); err != nil {
		e.recordFailure(run, filename, size, localFile, err)
		return nil
	}

	// A stale leftover from an aborted attempt must not survive into this one.
	_ = os.Remove(partial)

	e.board.SetActiveFile(filename, localFile)

	err := e.copyChunks(sess, remoteFile, partial, size, sig)
	switch {
	case err == nil:
		if err := os.Rename(partial, localFile); err != nil {
			_ = os.Remove(partial)
			e.recordFailure(run, filename, size, localFile, err)
			return nil
		}
		e.recordSuccess(run, filename, size, localFile)
		return nil

	case errors.Is(err, ErrStopped):
		_ = os.Remove(partial)
		return ErrStopped

	default:
		_ = os.Remove(partial)
		e.recordFailure(run, filename, size, localFile, err)
		e.reportError(fmt.Sprintf("%s - %v", remoteFile, err))
		return nil
	}
}

func (e *Engine) copyChunks(sess Session, remoteFile, partial string, size int64, sig *stop.Signal) error {
	src, err := sess.Open(remoteFile)
	if err != nil {
		return fmt.Errorf("failed to open remote file: %w", err)
	}
	defer func() {
		_ = src.Close()
	}()

	dst, err := os.Create(partial)
	if err != nil {
		return fmt.Errorf("failed to create partial file: %w", err)
	}

	buf := make([]byte, chunkSize)
	var written, lastWritten int64
	lastUpdate := time.Now()

	for {
		if sig.Triggered() {
			_ = dst.Close()
			return ErrStopped
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				_ = dst.Close()
				return fmt.Errorf("failed to write chunk: %w", werr)
			}
			written += int64(n)

			percent := 0
			if size > 0 {
				percent = int(written * 100 / size)
			}
			now := time.Now()
			elapsed := now.Sub(lastUpdate).Seconds()
			if elapsed < 0.001 {
				elapsed = 0.001
			}
			e.board.SetProgress(percent, FormatSpeed(float64(written-lastWritten)/elapsed))
			lastUpdate = now
			lastWritten = written

			if sig.Triggered() {
				_ = dst.Close()
				return ErrStopped
			}
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			_ = dst.Close()
			return fmt.Errorf("failed to read chunk: %w", rerr)
		}
	}

	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to close partial file: %w", err)
	}
	return nil
}

func (e *Engine) recordSuccess(run *runState, filename string, size int64, target string) {
	run.stats.FilesDownloaded++
	run.stats.BytesDownloaded += size
	e.board.BumpStats(1, size, 0)
	e.pushRecord(model.TransferRecord{
		Filename:    filename,
		Size:        size,
		TargetPath:  target,
		Status:      model.TransferSuccess,
		CompletedAt: time.Now().UTC(),
	})
}

func (e *Engine) recordFailure(run *runState, filename string, size int64, target string, cause error) {
	run.stats.Errors++
	e.board.BumpStats(0, 0, 1)
	e.pushRecord(model.TransferRecord{
		Filename:    filename,
		Size:        size,
		TargetPath:  target,
		Status:      model.TransferFailure,
		CompletedAt: time.Now().UTC(),
		ErrorMsg:    cause.Error(),
	})
}

func (e *Engine) pushRecord(rec model.TransferRecord) {
	e.board.PushTransfer(rec)
	if e.onTransfer != nil {
		e.onTransfer(rec)
	}
}

func (e *Engine) reportError(msg string) {
	e.board.SetLastError(msg)
	if e.onError != nil {
		e.onError(msg)
	}
	logger.Log.Error("mirror error", zap.String("detail", msg))
}

func sameSizeExists(localFile string, remoteSize int64) bool {
	info, err := os.Stat(localFile)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() == remoteSize
}
