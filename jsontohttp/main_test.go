package main

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidReading(t *testing.T) {
	assert.NoError(t, validReading(`{"device": {"address": "aa:bb"}, "sensors": {"energy_kwh": 1}}`))
	assert.Error(t, validReading(`{"device": `))
	assert.Error(t, validReading(`{"sensors": {"energy_kwh": 1}}`))
	assert.Error(t, validReading(`{"device": {"address": "aa:bb"}}`))
}

func TestFirstN(t *testing.T) {
	assert.Equal(t, "abc", firstN("abc", 5))
	assert.Equal(t, "ab...", firstN("abc", 2))
}

func TestPostRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := &poster{client: server.Client(), targetUrl: server.URL, maxElapsed: 10 * time.Second}
	assert.NoError(t, p.post(`{}`))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPostDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	p := &poster{client: server.Client(), targetUrl: server.URL, maxElapsed: 10 * time.Second}
	assert.Error(t, p.post(`{}`))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
