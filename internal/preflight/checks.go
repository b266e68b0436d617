package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"tankobon/internal/logging"
	"tankobon/internal/services"
	"tankobon/internal/telegram"
)

// TokenChecker is the Bot API call used to validate the bot token.
type TokenChecker interface {
	GetMe(ctx context.Context) (*telegram.User, error)
}

// CheckTelegram verifies that the Bot API is reachable and accepts the token.
func CheckTelegram(ctx context.Context, bot TokenChecker) Result {
	const name = "Telegram"

	checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	me, err := bot.GetMe(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizeTelegramError(err)}
	}
	if me.Username == "" {
		return Result{Name: name, Passed: true, Detail: "token accepted"}
	}
	return Result{Name: name, Passed: true, Detail: "@" + me.Username}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies that the filesystem holding path has at least
// minBytes available to unprivileged users.
func CheckFreeSpace(name, path string, minBytes uint64) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	detail := fmt.Sprintf("%s free of %s required", logging.FormatBytes(int64(free)), logging.FormatBytes(int64(minBytes)))
	if free < minBytes {
		return Result{Name: name, Detail: detail}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// summarizeTelegramError produces a human-readable summary for token check failures.
func summarizeTelegramError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "getMe timed out (Bot API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "getMe timed out (Bot API unreachable)"
	}
	if errors.Is(err, services.ErrConfiguration) {
		return "bot token rejected"
	}
	return services.Details(err).Message
}
