package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDeepgramSTT(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("language") != "en" {
			t.Errorf("expected language query param 'en', got %q", r.URL.Query().Get("language"))
		}
		w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"deepgram transcription"}]}]}}`))
	}))
	defer server.Close()

	s := &DeepgramSTT{apiKey: "test-key", url: server.URL}

	result, err := s.Transcribe(context.Background(), []byte{0}, "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "deepgram transcription" {
		t.Errorf("expected 'deepgram transcription', got %q", result)
	}
	if s.Name() != "deepgram-stt" {
		t.Errorf("expected deepgram-stt, got %s", s.Name())
	}
}

func TestDeepgramSTTPropagatesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad request"))
	}))
	defer server.Close()

	s := &DeepgramSTT{apiKey: "test-key", url: server.URL}
	_, err := s.Transcribe(context.Background(), []byte{0}, "")
	if err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}

func TestDeepgramSTTReturnsEmptyForNoAlternatives(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":{"channels":[]}}`))
	}))
	defer server.Close()

	s := &DeepgramSTT{apiKey: "test-key", url: server.URL}
	result, err := s.Transcribe(context.Background(), []byte{0}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "" {
		t.Errorf("expected empty transcript when no channels are returned, got %q", result)
	}
}
