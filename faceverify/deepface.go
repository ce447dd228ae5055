package faceverify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"cleanshot/logging"
)

// DeepFaceClient talks to a DeepFace-compatible REST service
type DeepFaceClient struct {
	BaseURL        string
	Model          string
	DistanceMetric string
	httpClient     *http.Client
}

// NewDeepFaceClient creates a client for the service at baseURL
func NewDeepFaceClient(baseURL, model string, timeout time.Duration) *DeepFaceClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &DeepFaceClient{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		Model:          model,
		DistanceMetric: "cosine",
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type verifyRequest struct {
	Img1             string `json:"img1"`
	Img2             string `json:"img2"`
	ModelName        string `json:"model_name"`
	DetectorBackend  string `json:"detector_backend"`
	DistanceMetric   string `json:"distance_metric"`
	EnforceDetection bool   `json:"enforce_detection"`
}

type verifyResponse struct {
	Verified  bool    `json:"verified"`
	Distance  float64 `json:"distance"`
	Threshold float64 `json:"threshold"`
	Model     string  `json:"model"`
	Detector  string  `json:"detector_backend"`
	Error     string  `json:"error"`
}

// Health checks that the service answers
func (c *DeepFaceClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check returned %d", ErrBackendFailure, resp.StatusCode)
	}
	return nil
}

// Backends returns one backend per detector, in order
func (c *DeepFaceClient) Backends(detectors ...string) []Backend {
	backends := make([]Backend, 0, len(detectors))
	for _, d := range detectors {
		backends = append(backends, &deepFaceBackend{client: c, detector: d})
	}
	return backends
}

// VerifyWithDetector compares two image files using one detector backend
// POST /verify
func (c *DeepFaceClient) VerifyWithDetector(ctx context.Context, detector, img1, img2 string) (Verdict, error) {
	enc1, err := encodeDataURI(img1)
	if err != nil {
		return Verdict{}, err
	}
	enc2, err := encodeDataURI(img2)
	if err != nil {
		return Verdict{}, err
	}

	payload, err := json.Marshal(verifyRequest{
		Img1:             enc1,
		Img2:             enc2,
		ModelName:        c.Model,
		DetectorBackend:  detector,
		DistanceMetric:   c.DistanceMetric,
		EnforceDetection: true,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to encode request: %w", err)
	}

	url := c.BaseURL + "/verify"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	logging.DebugLog("deepface verify: POST %s (detector=%s)", url, detector)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Verdict{}, ctx.Err()
		}
		return Verdict{}, fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: failed to read response: %v", ErrBackendFailure, err)
	}

	var parsed verifyResponse
	jsonErr := json.Unmarshal(body, &parsed)

	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		if jsonErr == nil && parsed.Error != "" {
			msg = parsed.Error
		}
		if isNoFaceMessage(msg) {
			return Verdict{}, fmt.Errorf("%w: %s", ErrNoFaceDetected, msg)
		}
		return Verdict{}, fmt.Errorf("%w: API error %d: %s", ErrBackendFailure, resp.StatusCode, msg)
	}
	if jsonErr != nil {
		return Verdict{}, fmt.Errorf("%w: failed to parse response: %v", ErrBackendFailure, jsonErr)
	}

	return Verdict{
		Verified:  parsed.Verified,
		Distance:  parsed.Distance,
		Threshold: parsed.Threshold,
	}, nil
}

// The service reports undetectable faces only through its error text
func isNoFaceMessage(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "face could not be detected") || strings.Contains(m, "no face")
}

func encodeDataURI(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image file: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}

type deepFaceBackend struct {
	client   *DeepFaceClient
	detector string
}

func (b *deepFaceBackend) Name() string { return b.detector }

func (b *deepFaceBackend) Verify(ctx context.Context, reference, candidate string) (Verdict, error) {
	return b.client.VerifyWithDetector(ctx, b.detector, reference, candidate)
}
