package telegram_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"tankobon/internal/services"
	"tankobon/internal/telegram"
)

const testToken = "123:secret"

type fakeAPI struct {
	t       *testing.T
	mu      sync.Mutex
	calls   map[string]int
	handler func(method string, r *http.Request) (int, string)
}

func newFakeAPI(t *testing.T, handler func(method string, r *http.Request) (int, string)) (*fakeAPI, *httptest.Server) {
	api := &fakeAPI{t: t, calls: make(map[string]int), handler: handler}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/bot"+testToken+"/") {
			http.NotFound(w, r)
			return
		}
		method := path.Base(r.URL.Path)
		api.mu.Lock()
		api.calls[method]++
		api.mu.Unlock()
		status, body := handler(method, r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return api, server
}

func (a *fakeAPI) count(method string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[method]
}

func newClient(server *httptest.Server, maxUpload int64) *telegram.Client {
	return telegram.New(telegram.Options{
		Token:          testToken,
		BaseURL:        server.URL,
		Timeout:        5 * time.Second,
		MaxUploadBytes: maxUpload,
		RetryMax:       0,
	})
}

func decodeJSON(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var params map[string]any
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		t.Errorf("decode request: %v", err)
	}
	return params
}

func TestSendTextAndKeyboard(t *testing.T) {
	var got map[string]any
	_, server := newFakeAPI(t, func(method string, r *http.Request) (int, string) {
		got = decodeJSON(t, r)
		return http.StatusOK, `{"ok":true,"result":{"message_id":77,"chat":{"id":5,"type":"private"}}}`
	})
	client := newClient(server, 0)

	id, err := client.SendText(context.Background(), 5, "hello")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if id != 77 {
		t.Fatalf("message id = %d, want 77", id)
	}
	if got["chat_id"].(float64) != 5 || got["text"] != "hello" {
		t.Fatalf("unexpected params: %v", got)
	}
	if _, ok := got["reply_markup"]; ok {
		t.Fatal("plain text must not carry a keyboard")
	}

	markup := telegram.Keyboard(
		[]telegram.InlineKeyboardButton{telegram.Button("CBZ", "f:cbz")},
		nil,
	)
	if _, err := client.SendMessage(context.Background(), 5, "pick", markup); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	rows, ok := got["reply_markup"].(map[string]any)["inline_keyboard"].([]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("keyboard not sent: %v", got["reply_markup"])
	}
}

func TestRateLimitCarriesRetryAfter(t *testing.T) {
	api, server := newFakeAPI(t, func(string, *http.Request) (int, string) {
		return http.StatusTooManyRequests, `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 3","parameters":{"retry_after":3}}`
	})
	client := newClient(server, 0)

	_, err := client.SendText(context.Background(), 1, "x")
	if !errors.Is(err, services.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if wait, ok := services.RetryAfter(err); !ok || wait != 3*time.Second {
		t.Fatalf("RetryAfter = %v, %v", wait, ok)
	}
	if api.count("sendMessage") != 1 {
		t.Fatalf("429 was retried by the client: %d calls", api.count("sendMessage"))
	}
}

func TestSendFileStreamsDocument(t *testing.T) {
	content := bytes.Repeat([]byte("page"), 4096)
	dir := t.TempDir()
	artifact := filepath.Join(dir, "artifact.cbz")
	if err := os.WriteFile(artifact, content, 0o644); err != nil {
		t.Fatal(err)
	}

	var (
		gotName, gotChat, gotCaption string
		gotData                      []byte
	)
	_, server := newFakeAPI(t, func(method string, r *http.Request) (int, string) {
		if method != "sendDocument" {
			return http.StatusBadRequest, `{"ok":false,"description":"unexpected"}`
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return http.StatusBadRequest, `{"ok":false}`
		}
		gotChat = r.FormValue("chat_id")
		gotCaption = r.FormValue("caption")
		file, header, err := r.FormFile("document")
		if err != nil {
			t.Errorf("form file: %v", err)
			return http.StatusBadRequest, `{"ok":false}`
		}
		defer file.Close()
		gotName = header.Filename
		gotData, _ = io.ReadAll(file)
		return http.StatusOK, `{"ok":true,"result":{"message_id":9,"chat":{"id":42,"type":"private"}}}`
	})
	client := newClient(server, 1<<20)

	if err := client.SendFile(context.Background(), 42, artifact, "Chapter 1.cbz", "Chapter 1"); err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	if gotChat != "42" || gotName != "Chapter 1.cbz" || gotCaption != "Chapter 1" {
		t.Fatalf("form = chat %q name %q caption %q", gotChat, gotName, gotCaption)
	}
	if !bytes.Equal(gotData, content) {
		t.Fatalf("uploaded %d bytes, want %d", len(gotData), len(content))
	}
}

func TestSendFileTooLarge(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "big.cbz")
	if err := os.WriteFile(artifact, make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("local limit", func(t *testing.T) {
		api, server := newFakeAPI(t, func(string, *http.Request) (int, string) {
			return http.StatusOK, `{"ok":true,"result":{}}`
		})
		err := newClient(server, 1024).SendFile(context.Background(), 1, artifact, "big.cbz", "")
		if !errors.Is(err, services.ErrDelivery) {
			t.Fatalf("err = %v, want ErrDelivery", err)
		}
		if api.count("sendDocument") != 0 {
			t.Fatal("oversized file was uploaded")
		}
	})

	t.Run("server limit", func(t *testing.T) {
		_, server := newFakeAPI(t, func(string, *http.Request) (int, string) {
			return http.StatusRequestEntityTooLarge, `{"ok":false,"error_code":413,"description":"Request Entity Too Large"}`
		})
		err := newClient(server, 0).SendFile(context.Background(), 1, artifact, "big.cbz", "")
		if !errors.Is(err, services.ErrDelivery) || errors.Is(err, services.ErrRateLimited) {
			t.Fatalf("err = %v, want non-retryable ErrDelivery", err)
		}
		if msg := services.Details(err).Message; msg != "File is too large for Telegram" {
			t.Fatalf("message = %q", msg)
		}
	})
}

func TestEditTextIgnoresNotModified(t *testing.T) {
	_, server := newFakeAPI(t, func(string, *http.Request) (int, string) {
		return http.StatusBadRequest, `{"ok":false,"error_code":400,"description":"Bad Request: message is not modified"}`
	})
	if err := newClient(server, 0).EditText(context.Background(), 1, 2, "same"); err != nil {
		t.Fatalf("EditText = %v, want nil", err)
	}
}

func TestGetUpdatesDecodes(t *testing.T) {
	var params map[string]any
	_, server := newFakeAPI(t, func(_ string, r *http.Request) (int, string) {
		params = decodeJSON(t, r)
		return http.StatusOK, `{"ok":true,"result":[
{"update_id":10,"message":{"message_id":1,"from":{"id":7,"first_name":"A"},"chat":{"id":7,"type":"private"},"text":"/start"}},
{"update_id":11,"callback_query":{"id":"cb1","from":{"id":7,"first_name":"A"},"data":"c:ab1"}}]}`
	})
	updates, err := newClient(server, 0).GetUpdates(context.Background(), 10, 1)
	if err != nil {
		t.Fatalf("GetUpdates: %v", err)
	}
	if params["offset"].(float64) != 10 || params["timeout"].(float64) != 1 {
		t.Fatalf("unexpected params: %v", params)
	}
	if len(updates) != 2 || updates[0].Message.Text != "/start" || updates[1].CallbackQuery.Data != "c:ab1" {
		t.Fatalf("unexpected updates: %+v", updates)
	}
}

func TestGetMeRejectedToken(t *testing.T) {
	_, server := newFakeAPI(t, func(string, *http.Request) (int, string) {
		return http.StatusUnauthorized, `{"ok":false,"error_code":401,"description":"Unauthorized"}`
	})
	if _, err := newClient(server, 0).GetMe(context.Background()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("GetMe = %v, want ErrConfiguration", err)
	}
}

func TestTransportErrorRedactsToken(t *testing.T) {
	_, server := newFakeAPI(t, func(string, *http.Request) (int, string) {
		return http.StatusOK, `{"ok":true}`
	})
	client := newClient(server, 0)
	server.Close()

	_, err := client.GetMe(context.Background())
	if !errors.Is(err, services.ErrDelivery) {
		t.Fatalf("err = %v, want ErrDelivery", err)
	}
	if strings.Contains(err.Error(), "secret") {
		t.Fatalf("token leaked into error: %v", err)
	}
}

func TestCancelledCall(t *testing.T) {
	_, server := newFakeAPI(t, func(string, *http.Request) (int, string) {
		return http.StatusOK, `{"ok":true}`
	})
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(fmt.Errorf("shutting down"))
	if _, err := newClient(server, 0).SendText(ctx, 1, "x"); !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
}
