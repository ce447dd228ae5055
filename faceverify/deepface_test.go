package faceverify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepFaceVerify(t *testing.T) {
	dir := t.TempDir()
	ref := filepath.Join(dir, "ref.jpg")
	cand := filepath.Join(dir, "cand.jpg")
	writeTestJPEG(t, ref)
	writeTestJPEG(t, cand)

	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    error
		wantResult Verdict
	}{
		{
			name:       "verified",
			status:     http.StatusOK,
			body:       `{"verified": true, "distance": 0.21, "threshold": 0.68, "model": "ArcFace"}`,
			wantResult: Verdict{Verified: true, Distance: 0.21, Threshold: 0.68},
		},
		{
			name:    "no face",
			status:  http.StatusBadRequest,
			body:    `{"error": "Exception while verifying: Face could not be detected in numpy array."}`,
			wantErr: ErrNoFaceDetected,
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    `boom`,
			wantErr: ErrBackendFailure,
		},
		{
			name:    "malformed body",
			status:  http.StatusOK,
			body:    `{not json`,
			wantErr: ErrBackendFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got verifyRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/verify", r.URL.Path)
				assert.Equal(t, http.MethodPost, r.Method)
				data, _ := io.ReadAll(r.Body)
				assert.NoError(t, json.Unmarshal(data, &got))
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewDeepFaceClient(srv.URL+"/", "ArcFace", 5*time.Second)
			backends := client.Backends("retinaface", "ssd")
			require.Len(t, backends, 2)
			assert.Equal(t, "retinaface", backends[0].Name())

			verdict, err := backends[0].Verify(context.Background(), ref, cand)
			assert.Equal(t, "retinaface", got.DetectorBackend)
			assert.Equal(t, "ArcFace", got.ModelName)
			assert.Equal(t, "cosine", got.DistanceMetric)
			assert.True(t, got.EnforceDetection)
			assert.True(t, strings.HasPrefix(got.Img1, "data:image/jpeg;base64,"))

			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantResult, verdict)
		})
	}
}

func TestDeepFaceUnreachable(t *testing.T) {
	dir := t.TempDir()
	ref := filepath.Join(dir, "ref.jpg")
	writeTestJPEG(t, ref)

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewDeepFaceClient(url, "ArcFace", time.Second)
	_, err := client.VerifyWithDetector(context.Background(), "opencv", ref, ref)
	assert.True(t, errors.Is(err, ErrBackendFailure))
	assert.True(t, errors.Is(client.Health(context.Background()), ErrBackendFailure))
}

func TestDeepFaceHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Welcome to DeepFace API!"))
	}))
	defer srv.Close()

	assert.NoError(t, NewDeepFaceClient(srv.URL, "ArcFace", time.Second).Health(context.Background()))
}
