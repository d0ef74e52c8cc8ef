// Package vertex talks to Vertex AI Pipelines through the aiplatform client
// library, and to the Kubeflow Pipelines flavour of Artifact Registry, which
// no client library covers, over plain HTTP.
package vertex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
)

// CloudPlatformScope is the OAuth scope used for every request.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// NewHTTPClient returns an HTTP client authorized with Application Default
// Credentials.
func NewHTTPClient(ctx context.Context) (*http.Client, error) {
	client, err := google.DefaultClient(ctx, CloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("finding Google credentials: %w", err)
	}
	return client, nil
}

// FindCredentials locates Application Default Credentials and returns the
// project they belong to, which may be empty.
func FindCredentials(ctx context.Context) (string, error) {
	creds, err := google.FindDefaultCredentials(ctx, CloudPlatformScope)
	if err != nil {
		return "", fmt.Errorf("finding Google credentials: %w", err)
	}
	return creds.ProjectID, nil
}

// APIError is a non-2xx response from the registry API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 API error.
func IsNotFound(err error) bool {
	return statusCode(err) == http.StatusNotFound
}

// IsAlreadyExists reports whether err is a 409 API error.
func IsAlreadyExists(err error) bool {
	return statusCode(err) == http.StatusConflict
}

// statusCode returns the HTTP status of a registry or client library error,
// or 0.
func statusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	return 0
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}

	var envelope struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Status = envelope.Error.Status
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// doJSON sends in as a JSON body, when non-nil, and decodes the response
// into out, when non-nil.
func doJSON(ctx context.Context, client *http.Client, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
