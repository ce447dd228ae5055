package faceverify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cleanshot/logging"
)

// CompreFace error code for images without a detectable face
const compreFaceNoFaceCode = 28

// CompreFaceClient uses the CompreFace verification service as a backend
type CompreFaceClient struct {
	BaseURL         string
	VerificationKey string
	MinSimilarity   float64
	httpClient      *http.Client
}

// NewCompreFaceClient creates a verification client
func NewCompreFaceClient(baseURL, verificationKey string, minSimilarity float64, timeout time.Duration) *CompreFaceClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &CompreFaceClient{
		BaseURL:         strings.TrimRight(baseURL, "/"),
		VerificationKey: verificationKey,
		MinSimilarity:   minSimilarity,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type faceMatch struct {
	Similarity float64 `json:"similarity"`
}

type verificationResult struct {
	FaceMatches []faceMatch `json:"face_matches"`
}

type verificationResponse struct {
	Result []verificationResult `json:"result"`
}

type compreFaceError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (c *CompreFaceClient) Name() string { return "compreface" }

// Verify compares the faces of two images
// POST /api/v1/verification/verify
func (c *CompreFaceClient) Verify(ctx context.Context, reference, candidate string) (Verdict, error) {
	url := fmt.Sprintf("%s/api/v1/verification/verify", c.BaseURL)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := addFormFile(writer, "source_image", reference); err != nil {
		return Verdict{}, err
	}
	if err := addFormFile(writer, "target_image", candidate); err != nil {
		return Verdict{}, err
	}
	if err := writer.Close(); err != nil {
		return Verdict{}, fmt.Errorf("failed to close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("x-api-key", c.VerificationKey)

	logging.DebugLog("compreface verify: POST %s", url)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Verdict{}, ctx.Err()
		}
		return Verdict{}, fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: failed to read response: %v", ErrBackendFailure, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr compreFaceError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Code == compreFaceNoFaceCode {
			return Verdict{}, fmt.Errorf("%w: %s", ErrNoFaceDetected, apiErr.Message)
		}
		return Verdict{}, fmt.Errorf("%w: API error %d: %s", ErrBackendFailure, resp.StatusCode, string(respBody))
	}

	var verification verificationResponse
	if err := json.Unmarshal(respBody, &verification); err != nil {
		return Verdict{}, fmt.Errorf("%w: failed to parse response: %v", ErrBackendFailure, err)
	}

	best := -1.0
	for _, r := range verification.Result {
		for _, m := range r.FaceMatches {
			if m.Similarity > best {
				best = m.Similarity
			}
		}
	}
	if best < 0 {
		return Verdict{}, fmt.Errorf("%w: no face matches returned", ErrNoFaceDetected)
	}

	return Verdict{
		Verified:  best >= c.MinSimilarity,
		Distance:  1 - best,
		Threshold: 1 - c.MinSimilarity,
	}, nil
}

func addFormFile(w *multipart.Writer, field, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read image file: %w", err)
	}
	part, err := w.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("failed to write image data: %w", err)
	}
	return nil
}
