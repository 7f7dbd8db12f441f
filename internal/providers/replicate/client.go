package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vidgen/internal/infra"
)

// ErrMissingAPIToken indicates that the client was configured without credentials.
var ErrMissingAPIToken = errors.New("replicate: api token is required")

// ErrWaitTimeout indicates that a prediction did not reach a terminal state
// within the configured maximum wait.
var ErrWaitTimeout = errors.New("replicate: prediction wait timed out")

// Prediction statuses reported by the provider. Anything that is not
// succeeded or failed counts as still in progress.
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
)

// Options configures the Replicate predictions client.
type Options struct {
	APIToken     string
	BaseURL      string
	ModelVersion string
	HTTPClient   *http.Client
	Logger       *infra.Logger
	PollInterval time.Duration
	MaxWait      time.Duration
}

// Client performs HTTP calls against the Replicate predictions API. It hides
// the asynchronous submit-then-poll protocol behind Run; Submit, Wait and Get
// are exposed separately so callers can persist the prediction id between the
// two phases. The client is stateless between invocations.
type Client struct {
	apiToken     string
	baseURL      string
	modelVersion string
	httpClient   *http.Client
	logger       *infra.Logger
	pollInterval time.Duration
	maxWait      time.Duration
}

// PredictionInput carries the generation parameters. The named fields cover
// the model knobs this service sets; Extra is merged into the payload for
// provider-specific additions.
type PredictionInput struct {
	Prompt          string `json:"prompt"`
	VideoLength     string `json:"video_length,omitempty"`
	SizingStrategy  string `json:"sizing_strategy,omitempty"`
	MotionBucketID  int    `json:"motion_bucket_id,omitempty"`
	FramesPerSecond int    `json:"frames_per_second,omitempty"`

	Extra map[string]any `json:"-"`
}

// MarshalJSON merges Extra into the named fields. Named fields win on key
// collisions.
func (in PredictionInput) MarshalJSON() ([]byte, error) {
	type alias PredictionInput
	base, err := json.Marshal(alias(in))
	if err != nil {
		return nil, err
	}
	if len(in.Extra) == 0 {
		return base, nil
	}
	merged := make(map[string]any, len(in.Extra)+5)
	for k, v := range in.Extra {
		merged[k] = v
	}
	var named map[string]any
	if err := json.Unmarshal(base, &named); err != nil {
		return nil, err
	}
	for k, v := range named {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// Output is the provider-defined success payload. The API returns either a
// bare URI, a list of URIs, or an object carrying a video URI plus optional
// frame URIs; all three forms are normalized here.
type Output struct {
	Video  string
	Frames []string
}

// UnmarshalJSON accepts the string, array and object output shapes.
func (o *Output) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		o.Video = s
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		if len(list) > 0 {
			o.Video = list[0]
			o.Frames = list[1:]
		}
		return nil
	}
	var obj struct {
		Video  string   `json:"video"`
		Frames []string `json:"frames"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("replicate: unsupported output shape: %w", err)
	}
	o.Video = obj.Video
	o.Frames = obj.Frames
	return nil
}

// VideoURL returns the primary video location.
func (o *Output) VideoURL() string {
	if o == nil {
		return ""
	}
	return o.Video
}

// ThumbnailURL returns the first frame location, falling back to the video
// itself when the provider supplied no frames.
func (o *Output) ThumbnailURL() string {
	if o == nil {
		return ""
	}
	if len(o.Frames) > 0 && o.Frames[0] != "" {
		return o.Frames[0]
	}
	return o.Video
}

// Prediction is the provider-side handle for one generation request.
type Prediction struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Output *Output `json:"output"`
	Error  string  `json:"error"`
}

// InProgress reports whether the prediction has not yet reached a terminal state.
func (p *Prediction) InProgress() bool {
	return p.Status != StatusSucceeded && p.Status != StatusFailed
}

type createRequest struct {
	Version string          `json:"version"`
	Input   PredictionInput `json:"input"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIToken) == "" {
		return nil, ErrMissingAPIToken
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.replicate.com/v1"
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	maxWait := opts.MaxWait
	if maxWait <= 0 {
		maxWait = 10 * time.Minute
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiToken:     strings.TrimSpace(opts.APIToken),
		baseURL:      baseURL,
		modelVersion: strings.TrimSpace(opts.ModelVersion),
		httpClient:   httpClient,
		logger:       logger,
		pollInterval: pollInterval,
		maxWait:      maxWait,
	}, nil
}

// ModelVersion returns the configured default model version.
func (c *Client) ModelVersion() string {
	return c.modelVersion
}

// Submit creates a prediction and returns the provider-assigned handle
// without waiting for completion.
func (c *Client) Submit(ctx context.Context, modelVersion string, input PredictionInput) (*Prediction, error) {
	version := strings.TrimSpace(modelVersion)
	if version == "" {
		version = c.modelVersion
	}
	if version == "" {
		return nil, errors.New("replicate: model version is required")
	}
	body, err := json.Marshal(createRequest{Version: version, Input: input})
	if err != nil {
		return nil, fmt.Errorf("replicate: encode request: %w", err)
	}
	prediction, err := c.do(ctx, http.MethodPost, c.baseURL+"/predictions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.logger.Debug().
		Str("prediction_id", prediction.ID).
		Str("status", prediction.Status).
		Msg("replicate: prediction created")
	return prediction, nil
}

// Get reads the current state of a prediction.
func (c *Client) Get(ctx context.Context, predictionID string) (*Prediction, error) {
	id := strings.TrimSpace(predictionID)
	if id == "" {
		return nil, errors.New("replicate: prediction id is required")
	}
	return c.do(ctx, http.MethodGet, c.baseURL+"/predictions/"+id, nil)
}

// Wait polls the prediction at the configured interval until it reaches a
// terminal state, the context is canceled, or the maximum wait elapses. The
// returned prediction is terminal; a provider-reported failure is not an
// error here, the caller inspects Status and Error.
func (c *Client) Wait(ctx context.Context, predictionID string) (*Prediction, error) {
	deadline := time.Now().Add(c.maxWait)
	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()

	for {
		prediction, err := c.Get(ctx, predictionID)
		if err != nil {
			return nil, err
		}
		if !prediction.InProgress() {
			return prediction, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w after %s (prediction %s, status %s)", ErrWaitTimeout, c.maxWait, predictionID, prediction.Status)
		}
		timer.Reset(c.pollInterval)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Run submits a prediction and blocks until a terminal outcome, returning the
// output on success. A provider-reported failure surfaces the provider's
// reason.
func (c *Client) Run(ctx context.Context, modelVersion string, input PredictionInput) (*Output, error) {
	prediction, err := c.Submit(ctx, modelVersion, input)
	if err != nil {
		return nil, err
	}
	terminal, err := c.Wait(ctx, prediction.ID)
	if err != nil {
		return nil, err
	}
	if terminal.Status == StatusFailed {
		return nil, fmt.Errorf("replicate: prediction failed: %s", terminal.Error)
	}
	return terminal.Output, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader) (*Prediction, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("replicate: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("replicate: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("replicate: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("replicate: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var prediction Prediction
	if err := json.Unmarshal(raw, &prediction); err != nil {
		return nil, fmt.Errorf("replicate: decode response: %w", err)
	}
	return &prediction, nil
}
