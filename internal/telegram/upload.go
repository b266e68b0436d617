package telegram

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"

	"tankobon/internal/logging"
	"tankobon/internal/services"
)

// SendDocument streams the file at path as a multipart upload. The file is
// reopened for every HTTP attempt so retries never buffer it in memory.
func (c *Client) SendDocument(ctx context.Context, chatID int64, path, fileName, caption string) (*Message, error) {
	const method = "sendDocument"

	info, err := os.Stat(path)
	if err != nil {
		return nil, services.Wrap(services.ErrDelivery, "", method, "artifact is missing", err)
	}
	if c.maxUpload > 0 && info.Size() > c.maxUpload {
		return nil, services.Wrap(services.ErrDelivery, "", method,
			fmt.Sprintf("File is too large for Telegram (%d MB limit)", c.maxUpload>>20), nil)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.transportError(ctx, method, err)
	}

	boundary := multipart.NewWriter(io.Discard).Boundary()
	body := retryablehttp.ReaderFunc(func() (io.Reader, error) {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		pr, pw := io.Pipe()
		go func() {
			defer file.Close()
			pw.CloseWithError(writeDocumentForm(pw, boundary, file, chatID, fileName, caption))
		}()
		return pr, nil
	})

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+method, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("uploading document",
		logging.Int64("chat_id", chatID),
		logging.String("file", fileName),
		logging.Int64("bytes", info.Size()),
	)
	var msg Message
	if err := c.do(ctx, method, req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func writeDocumentForm(w io.Writer, boundary string, file io.Reader, chatID int64, fileName, caption string) error {
	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(boundary); err != nil {
		return err
	}
	if err := mw.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return err
	}
	if caption != "" {
		if err := mw.WriteField("caption", caption); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("document", fileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return mw.Close()
}
