package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/botwatch/state"
)

func TestDeliver_Signed(t *testing.T) {
	var gotSig string
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		assert.Equal(t, "sha256="+Sign("s3cret", body), gotSig)
		assert.NoError(t, json.Unmarshal(body, &got))
	}))
	defer srv.Close()

	n := New("s3cret")
	err := n.Deliver(context.Background(), srv.URL, &Event{Type: "completed", JobID: "j1"})
	require.NoError(t, err)
	assert.NotEmpty(t, gotSig)
	assert.Equal(t, "j1", got.JobID)
}

func TestDeliver_Unsigned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(SignatureHeader))
	}))
	defer srv.Close()

	require.NoError(t, New("").Deliver(context.Background(), srv.URL, &Event{Type: "progress"}))
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New("").Deliver(context.Background(), srv.URL, &Event{})
	assert.ErrorContains(t, err, "status 502")
}

func TestRelay_Retries(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		wantCalls int32
	}{
		{"progress is attempted once", state.EventProgress, 1},
		{"completed is retried", state.EventCompleted, 4},
		{"error is retried", state.EventError, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(http.StatusInternalServerError)
			}))
			defer srv.Close()

			n := New("")
			n.retries = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
			n.Relay(srv.URL)(state.NewEvent(tt.eventType, "j1", nil))

			require.Eventually(t, func() bool { return calls.Load() == tt.wantCalls },
				2*time.Second, 5*time.Millisecond)
			time.Sleep(20 * time.Millisecond)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}
