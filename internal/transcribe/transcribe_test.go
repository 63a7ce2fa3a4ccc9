package transcribe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTranscribeSendsMultipartAndParsesResponse(t *testing.T) {
	var gotAuth, gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model")
		w.Write([]byte(`{"text":"hello world"}`))
	}))
	defer srv.Close()

	c := New("secret-key", srv.URL, "whisper-1")
	text, err := c.Transcribe(context.Background(), []byte("fake-ogg-bytes"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello world" {
		t.Errorf("text = %q, want %q", text, "hello world")
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotModel != "whisper-1" {
		t.Errorf("model field = %q", gotModel)
	}
}

func TestTranscribeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	c := New("bad-key", srv.URL, "")
	if _, err := c.Transcribe(context.Background(), []byte("x")); err == nil {
		t.Error("expected error on non-200 response")
	}
}
