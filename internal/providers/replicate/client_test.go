package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, baseURL string, maxWait time.Duration) *Client {
	t.Helper()
	client, err := NewClient(Options{
		APIToken:     "r8_test",
		BaseURL:      baseURL,
		ModelVersion: "owner/model:abc123",
		PollInterval: time.Millisecond,
		MaxWait:      maxWait,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := NewClient(Options{}); !errors.Is(err, ErrMissingAPIToken) {
		t.Fatalf("err = %v, want ErrMissingAPIToken", err)
	}
}

func TestRunPollsUntilSucceeded(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token r8_test" {
			t.Errorf("Authorization = %q", got)
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/predictions":
			var req struct {
				Version string          `json:"version"`
				Input   json.RawMessage `json:"input"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode create request: %v", err)
			}
			if req.Version != "owner/model:abc123" {
				t.Errorf("version = %q", req.Version)
			}
			fmt.Fprint(w, `{"id":"pred-1","status":"starting"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/predictions/pred-1":
			if polls.Add(1) < 3 {
				fmt.Fprint(w, `{"id":"pred-1","status":"processing"}`)
				return
			}
			fmt.Fprint(w, `{"id":"pred-1","status":"succeeded","output":{"video":"https://x/v.mp4","frames":["https://x/f0.png"]}}`)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, time.Minute)
	output, err := client.Run(context.Background(), "", PredictionInput{Prompt: "a cat walking"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if output.VideoURL() != "https://x/v.mp4" {
		t.Fatalf("video = %q", output.VideoURL())
	}
	if output.ThumbnailURL() != "https://x/f0.png" {
		t.Fatalf("thumbnail = %q", output.ThumbnailURL())
	}
	if polls.Load() != 3 {
		t.Fatalf("polls = %d, want 3", polls.Load())
	}
}

func TestRunSurfacesProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprint(w, `{"id":"pred-2","status":"starting"}`)
			return
		}
		fmt.Fprint(w, `{"id":"pred-2","status":"failed","error":"NSFW content"}`)
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, time.Minute)
	_, err := client.Run(context.Background(), "", PredictionInput{Prompt: "anything"})
	if err == nil || !strings.Contains(err.Error(), "NSFW content") {
		t.Fatalf("err = %v, want provider reason surfaced", err)
	}
}

func TestSubmitCapturesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"detail":"invalid version"}`)
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, time.Minute)
	_, err := client.Submit(context.Background(), "", PredictionInput{Prompt: "x"})
	if err == nil || !strings.Contains(err.Error(), "invalid version") {
		t.Fatalf("err = %v, want body captured", err)
	}
	if !strings.Contains(err.Error(), "422") {
		t.Fatalf("err = %v, want status code captured", err)
	}
}

func TestWaitTransportErrorIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			fmt.Fprint(w, `{"id":"pred-3","status":"processing"}`)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "upstream down")
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, time.Minute)
	_, err := client.Wait(context.Background(), "pred-3")
	if err == nil || !strings.Contains(err.Error(), "upstream down") {
		t.Fatalf("err = %v, want transport failure", err)
	}
}

func TestWaitTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"pred-4","status":"processing"}`)
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, 5*time.Millisecond)
	_, err := client.Wait(context.Background(), "pred-4")
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("err = %v, want ErrWaitTimeout", err)
	}
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"pred-5","status":"processing"}`)
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := client.Wait(ctx, "pred-5")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestPredictionInputMarshalMergesExtra(t *testing.T) {
	in := PredictionInput{
		Prompt:          "a cat walking",
		VideoLength:     "14_frames_with_svd",
		SizingStrategy:  "maintain_aspect_ratio",
		MotionBucketID:  127,
		FramesPerSecond: 6,
		Extra: map[string]any{
			"seed":   42,
			"prompt": "must not win",
		},
	}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["prompt"] != "a cat walking" {
		t.Fatalf("named field did not win collision: %v", decoded["prompt"])
	}
	if decoded["seed"] != float64(42) {
		t.Fatalf("extra field missing: %v", decoded["seed"])
	}
	if decoded["motion_bucket_id"] != float64(127) {
		t.Fatalf("motion_bucket_id = %v", decoded["motion_bucket_id"])
	}
}

func TestOutputShapes(t *testing.T) {
	cases := []struct {
		name      string
		payload   string
		video     string
		thumbnail string
	}{
		{"bare string", `"https://x/v.mp4"`, "https://x/v.mp4", "https://x/v.mp4"},
		{"array", `["https://x/v.mp4","https://x/f0.png"]`, "https://x/v.mp4", "https://x/f0.png"},
		{"object with frames", `{"video":"https://x/v.mp4","frames":["https://x/f0.png","https://x/f1.png"]}`, "https://x/v.mp4", "https://x/f0.png"},
		{"object without frames", `{"video":"https://x/v.mp4"}`, "https://x/v.mp4", "https://x/v.mp4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out Output
			if err := json.Unmarshal([]byte(tc.payload), &out); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if out.VideoURL() != tc.video {
				t.Fatalf("video = %q, want %q", out.VideoURL(), tc.video)
			}
			if out.ThumbnailURL() != tc.thumbnail {
				t.Fatalf("thumbnail = %q, want %q", out.ThumbnailURL(), tc.thumbnail)
			}
		})
	}
}
