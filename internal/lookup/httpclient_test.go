package lookup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			if r.Header.Get("Authorization") != "Bearer tok" {
				t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
			}
			_, _ = w.Write([]byte(`{"name":"x"}`))
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("boom"))
		}
	}))
	defer server.Close()

	client, err := NewHTTPClient("", time.Second, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	var out struct{ Name string }
	if err := GetJSON(ctx, client, server.URL+"/ok", "tok", &out); err != nil {
		t.Fatalf("GetJSON() ошибка: %v", err)
	}
	if out.Name != "x" {
		t.Errorf("Name = %q", out.Name)
	}

	if err := GetJSON(ctx, client, server.URL+"/missing", "", &out); !errors.Is(err, ErrNotFound) {
		t.Errorf("404 = %v, ожидается ErrNotFound", err)
	}

	err = GetJSON(ctx, client, server.URL+"/fail", "", &out)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != 500 || statusErr.Body != "boom" {
		t.Errorf("500 = %v, ожидается StatusError", err)
	}
}

func TestNewHTTPClient_BadCA(t *testing.T) {
	if _, err := NewHTTPClient("/nonexistent/ca.pem", time.Second, testLogger()); err == nil {
		t.Error("ожидалась ошибка для несуществующего CA")
	}

	path := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(path, []byte("not a pem"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewHTTPClient(path, time.Second, testLogger()); err == nil {
		t.Error("ожидалась ошибка для файла без PEM")
	}
}
