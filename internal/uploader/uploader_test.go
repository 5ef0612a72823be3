package uploader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPUploaderPost(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Debug-Id")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	u := NewHTTPUploader(2 * time.Second)
	res, err := u.Post(context.Background(), srv.URL, []byte(`{"events":[]}`), map[string]string{
		"X-Debug-Id": "abc",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != http.StatusAccepted {
		t.Fatalf("got status %d, want %d", res.Status, http.StatusAccepted)
	}
	if gotHeader != "abc" {
		t.Fatalf("got header %q, want %q", gotHeader, "abc")
	}
}
