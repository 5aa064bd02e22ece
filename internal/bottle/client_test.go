package bottle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testClient(url string, timeout time.Duration) *Client {
	return New(url, "test-key", timeout, zap.NewNop())
}

func TestCall_PickSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("id") != "10001" {
			t.Errorf("id = %q, want 10001", q.Get("id"))
		}
		if q.Get("key") != "test-key" {
			t.Errorf("key = %q, want test-key", q.Get("key"))
		}
		if q.Get("type") != "text" {
			t.Errorf("type = %q, want text", q.Get("type"))
		}
		if q.Has("character") || q.Has("url") {
			t.Error("pick must not carry character/url params")
		}
		_, _ = w.Write([]byte("  来自大海的瓶子\n图片URL: 无\n"))
	}))
	defer srv.Close()

	btl, err := testClient(srv.URL, 3*time.Second).Call(context.Background(), ActionPick, "10001", "", "")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if btl.Text != "来自大海的瓶子\n图片URL: 无" {
		t.Errorf("unexpected text: %q", btl.Text)
	}
	if btl.ImageURL != "" {
		t.Errorf("expected no image, got %q", btl.ImageURL)
	}
}

func TestCall_PickSuccessWithImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("瓶子内容\n图片URL: https://img.example/1.jpg"))
	}))
	defer srv.Close()

	btl, err := testClient(srv.URL, 3*time.Second).Call(context.Background(), ActionPick, "1", "", "")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if btl.ImageURL != "https://img.example/1.jpg" {
		t.Errorf("ImageURL = %q", btl.ImageURL)
	}
}

func TestCall_ThrowParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("character") != "今天天气真好" {
			t.Errorf("character = %q", q.Get("character"))
		}
		if q.Get("url") != "https://img.example/2.jpg" {
			t.Errorf("url = %q", q.Get("url"))
		}
		_, _ = w.Write([]byte("投放成功"))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 3*time.Second).
		Call(context.Background(), ActionThrow, "1", "今天天气真好", "https://img.example/2.jpg")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
}

func TestCall_RemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("错误：key无效"))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 3*time.Second).Call(context.Background(), ActionPick, "1", "", "")
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Kind != ErrRemote {
		t.Errorf("Kind = %v, want ErrRemote", apiErr.Kind)
	}
	if apiErr.Message != "key无效" {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestCall_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 3*time.Second).Call(context.Background(), ActionPick, "1", "", "")
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Kind != ErrHTTP || apiErr.Status != http.StatusBadGateway {
		t.Errorf("got kind=%v status=%d", apiErr.Kind, apiErr.Status)
	}
}

func TestCall_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte("too late"))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 50*time.Millisecond).Call(context.Background(), ActionPick, "1", "", "")
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Kind != ErrTimeout {
		t.Errorf("Kind = %v, want ErrTimeout", apiErr.Kind)
	}
}

func TestCall_ConnectError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	url := srv.URL
	srv.Close() // порт закрыт — соединение должно падать

	_, err := testClient(url, time.Second).Call(context.Background(), ActionPick, "1", "", "")
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Kind != ErrConnect {
		t.Errorf("Kind = %v, want ErrConnect", apiErr.Kind)
	}
}

func TestExtractImageURL(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    string
	}{
		{"no image line", "просто текст", ""},
		{"none sentinel", "текст\n图片URL: 无", ""},
		{"http url", "текст\n图片URL: http://img.example/a.png", "http://img.example/a.png"},
		{"https url", "текст\n图片URL: https://img.example/b.png\nостаток", "https://img.example/b.png"},
		{"non-http rejected", "текст\n图片URL: file:///etc/passwd", ""},
		{"empty value", "текст\n图片URL:", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractImageURL(tc.payload); got != tc.want {
				t.Errorf("extractImageURL = %q, want %q", got, tc.want)
			}
		})
	}
}
