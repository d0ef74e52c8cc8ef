package vertex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ErrMissingRegistryHost is returned when an Artifact Registry operation is
// requested without a registry location and repository.
var ErrMissingRegistryHost = errors.New("artifact registry host is missing: set GAR_LOCATION and GAR_PIPELINES_REPO_ID")

// RegistryHost returns the Kubeflow Pipelines registry URL of a repository,
// or "" when location or repository is unset.
func RegistryHost(location, project, repo string) string {
	if location == "" || repo == "" {
		return ""
	}
	return fmt.Sprintf("https://%s-kfp.pkg.dev/%s/%s", location, project, repo)
}

// PackageName is the registry package of a pipeline.
func PackageName(pipeline string) string {
	return strings.ReplaceAll(pipeline, "_", "-")
}

// Registry is a client for a Kubeflow Pipelines Artifact Registry repository.
type Registry struct {
	HTTP *http.Client
	Host string
}

// Tag points a tag name at a package version.
type Tag struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ShortName returns the last path segment of the tag name.
func (t Tag) ShortName() string {
	return lastSegment(t.Name)
}

// VersionID returns the last path segment of the version, a sha256 digest.
func (t Tag) VersionID() string {
	return lastSegment(t.Version)
}

func lastSegment(s string) string {
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// TagNotFoundError reports a tag missing from a package.
type TagNotFoundError struct {
	Tag       string
	Package   string
	Available []string
}

func (e *TagNotFoundError) Error() string {
	return fmt.Sprintf("tag %q not found for package %s, available tags: [%s]",
		e.Tag, e.Package, strings.Join(e.Available, ", "))
}

// Upload sends a compiled pipeline to the registry with the given tags and
// returns the package and version names.
func (r *Registry) Upload(ctx context.Context, specPath string, tags []string) (pkg, version string, err error) {
	if r.Host == "" {
		return "", "", ErrMissingRegistryHost
	}
	content, err := os.ReadFile(specPath)
	if err != nil {
		return "", "", fmt.Errorf("reading compiled pipeline: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("content", filepath.Base(specPath))
	if err != nil {
		return "", "", err
	}
	if _, err := part.Write(content); err != nil {
		return "", "", err
	}
	for _, tag := range tags {
		if err := mw.WriteField("tags", tag); err != nil {
			return "", "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Host, &body)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := r.HTTP.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("uploading pipeline: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "", fmt.Errorf("uploading pipeline: %w", decodeAPIError(resp))
	}

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("reading upload response: %w", err)
	}
	pkg, version, ok := strings.Cut(strings.TrimSpace(string(text)), "/")
	if !ok {
		return "", "", fmt.Errorf("unexpected upload response %q", text)
	}
	return pkg, version, nil
}

// GetTag fetches one tag of a package.
func (r *Registry) GetTag(ctx context.Context, pkg, tag string) (Tag, error) {
	if r.Host == "" {
		return Tag{}, ErrMissingRegistryHost
	}
	var out Tag
	if err := doJSON(ctx, r.HTTP, http.MethodGet, fmt.Sprintf("%s/%s/tags/%s", r.Host, pkg, tag), nil, &out); err != nil {
		return Tag{}, fmt.Errorf("getting tag %s of %s: %w", tag, pkg, err)
	}
	return out, nil
}

// ListTags lists the tags of a package.
func (r *Registry) ListTags(ctx context.Context, pkg string) ([]Tag, error) {
	if r.Host == "" {
		return nil, ErrMissingRegistryHost
	}
	var out struct {
		Tags []Tag `json:"tags"`
	}
	if err := doJSON(ctx, r.HTTP, http.MethodGet, fmt.Sprintf("%s/%s/tags", r.Host, pkg), nil, &out); err != nil {
		return nil, fmt.Errorf("listing tags of %s: %w", pkg, err)
	}
	return out.Tags, nil
}

// ResolveTag returns the version a tag points to, or a *TagNotFoundError
// listing the package's tags when it does not exist.
func (r *Registry) ResolveTag(ctx context.Context, pkg, tag string) (string, error) {
	t, err := r.GetTag(ctx, pkg, tag)
	if err == nil {
		return t.VersionID(), nil
	}
	if !IsNotFound(err) {
		return "", err
	}
	tags, listErr := r.ListTags(ctx, pkg)
	if listErr != nil {
		return "", errors.Join(err, listErr)
	}
	notFound := &TagNotFoundError{Tag: tag, Package: r.Host + "/" + pkg}
	for _, t := range tags {
		notFound.Available = append(notFound.Available, t.ShortName())
	}
	return "", notFound
}

// Download fetches a template by URL from the registry.
func (r *Registry) Download(ctx context.Context, templateURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, templateURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading template: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("downloading template %s: %w", templateURL, decodeAPIError(resp))
	}
	return io.ReadAll(resp.Body)
}
