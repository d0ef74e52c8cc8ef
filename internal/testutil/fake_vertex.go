package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// CallRecord records one request received by a FakeVertex server.
type CallRecord struct {
	Method string
	Path   string
	Query  string
	Body   []byte
}

// FakeSchedule is a schedule returned by the fake schedules listing.
type FakeSchedule struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Cron        string `json:"cron"`
}

// RegistryPath is the path prefix of the fake Artifact Registry repository.
const RegistryPath = "/registry/my-project/pipelines"

// FakeVertexBuilder configures a FakeVertex server.
type FakeVertexBuilder struct {
	t         *testing.T
	schedules []FakeSchedule
	tags      map[string]map[string]string
	templates map[string]string
	failures  map[string]int
}

// NewFakeVertexBuilder starts configuring a fake Vertex AI and Artifact
// Registry server.
func NewFakeVertexBuilder(t *testing.T) *FakeVertexBuilder {
	t.Helper()
	return &FakeVertexBuilder{
		t:         t,
		tags:      map[string]map[string]string{},
		templates: map[string]string{},
		failures:  map[string]int{},
	}
}

// WithSchedules makes the schedules listing return schedules.
func (b *FakeVertexBuilder) WithSchedules(schedules ...FakeSchedule) *FakeVertexBuilder {
	b.schedules = append(b.schedules, schedules...)
	return b
}

// WithTag registers tag of pkg pointing at version, serving template for it.
func (b *FakeVertexBuilder) WithTag(pkg, tag, version, template string) *FakeVertexBuilder {
	if b.tags[pkg] == nil {
		b.tags[pkg] = map[string]string{}
	}
	b.tags[pkg][tag] = version
	b.templates[pkg+"/"+version] = template
	b.templates[pkg+"/"+tag] = template
	return b
}

// WithFailure makes requests whose path contains substr fail with status.
func (b *FakeVertexBuilder) WithFailure(substr string, status int) *FakeVertexBuilder {
	b.failures[substr] = status
	return b
}

// Build starts the TLS server. It is closed when the test ends.
func (b *FakeVertexBuilder) Build() *FakeVertex {
	f := &FakeVertex{builder: b, experiments: map[string]bool{}}
	f.server = httptest.NewTLSServer(http.HandlerFunc(f.serve))
	b.t.Cleanup(f.server.Close)
	return f
}

// FakeVertex is an in-memory stand-in for the Vertex AI REST API and a
// Kubeflow Pipelines Artifact Registry repository.
type FakeVertex struct {
	builder     *FakeVertexBuilder
	server      *httptest.Server
	mu          sync.Mutex
	calls       []CallRecord
	experiments map[string]bool
}

// URL is the Vertex API endpoint, used in place of
// https://{region}-aiplatform.googleapis.com.
func (f *FakeVertex) URL() string {
	return f.server.URL
}

// RegistryHost is the fake registry repository URL.
func (f *FakeVertex) RegistryHost() string {
	return f.server.URL + RegistryPath
}

// Client returns an HTTP client trusting the server certificate.
func (f *FakeVertex) Client() *http.Client {
	return f.server.Client()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": status, "message": msg, "status": http.StatusText(status)},
	})
}

func (f *FakeVertex) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(body))

	f.mu.Lock()
	f.calls = append(f.calls, CallRecord{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: body})
	f.mu.Unlock()

	for substr, status := range f.builder.failures {
		if strings.Contains(r.URL.Path, substr) {
			writeAPIError(w, status, "injected failure")
			return
		}
	}

	p := r.URL.Path
	switch {
	case strings.HasPrefix(p, RegistryPath):
		f.serveRegistry(w, r, strings.TrimPrefix(strings.TrimPrefix(p, RegistryPath), "/"))
	case r.Method == http.MethodPost && strings.HasSuffix(p, "/pipelineJobs"):
		jobID := r.URL.Query().Get("pipelineJobId")
		var job map[string]any
		_ = json.Unmarshal(body, &job)
		parent := strings.TrimSuffix(strings.TrimPrefix(p, "/v1/"), "/pipelineJobs")
		job["name"] = parent + "/pipelineJobs/" + jobID
		job["state"] = "PIPELINE_STATE_PENDING"
		job["jobDetail"] = map[string]any{
			"pipelineRunContext": map[string]any{"name": parent + "/metadataStores/default/contexts/" + jobID},
		}
		writeJSON(w, http.StatusOK, job)
	case r.Method == http.MethodPost && strings.HasSuffix(p, "/contexts"):
		id := r.URL.Query().Get("contextId")
		f.mu.Lock()
		exists := f.experiments[id]
		f.experiments[id] = true
		f.mu.Unlock()
		if exists {
			writeAPIError(w, http.StatusConflict, "context already exists")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"name": id})
	case r.Method == http.MethodPost && strings.HasSuffix(p, ":addContextChildren"):
		writeJSON(w, http.StatusOK, map[string]any{})
	case r.Method == http.MethodGet && strings.HasSuffix(p, "/schedules"):
		writeJSON(w, http.StatusOK, map[string]any{"schedules": f.builder.schedules})
	case r.Method == http.MethodDelete && strings.Contains(p, "/schedules/"):
		writeJSON(w, http.StatusOK, map[string]any{
			"name": "operations/delete-" + path.Base(p),
			"done": true,
			"response": map[string]any{
				"@type": "type.googleapis.com/google.protobuf.Empty",
				"value": map[string]any{},
			},
		})
	case r.Method == http.MethodPost && strings.HasSuffix(p, "/schedules"):
		var sched map[string]any
		_ = json.Unmarshal(body, &sched)
		sched["name"] = strings.TrimPrefix(p, "/v1/") + "/42"
		sched["state"] = "ACTIVE"
		writeJSON(w, http.StatusOK, sched)
	default:
		writeAPIError(w, http.StatusNotFound, fmt.Sprintf("no route for %s %s", r.Method, p))
	}
}

func (f *FakeVertex) serveRegistry(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.Split(rest, "/")
	switch {
	case r.Method == http.MethodPost && rest == "":
		f.upload(w, r)
	case r.Method == http.MethodGet && len(parts) == 3 && parts[1] == "tags":
		version, ok := f.builder.tags[parts[0]][parts[2]]
		if !ok {
			writeAPIError(w, http.StatusNotFound, "tag not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"name":    fmt.Sprintf("projects/my-project/packages/%s/tags/%s", parts[0], parts[2]),
			"version": fmt.Sprintf("projects/my-project/packages/%s/versions/%s", parts[0], version),
		})
	case r.Method == http.MethodGet && len(parts) == 2 && parts[1] == "tags":
		var names []string
		for tag := range f.builder.tags[parts[0]] {
			names = append(names, tag)
		}
		sort.Strings(names)
		tags := make([]map[string]string, 0, len(names))
		for _, tag := range names {
			tags = append(tags, map[string]string{
				"name": fmt.Sprintf("projects/my-project/packages/%s/tags/%s", parts[0], tag),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
	case r.Method == http.MethodGet && len(parts) == 2:
		tmpl, ok := f.builder.templates[rest]
		if !ok {
			writeAPIError(w, http.StatusNotFound, "template not found")
			return
		}
		w.Header().Set("Content-Type", "application/x-yaml")
		_, _ = io.WriteString(w, tmpl)
	default:
		writeAPIError(w, http.StatusNotFound, "no registry route")
	}
}

func (f *FakeVertex) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}
	file, header, err := r.FormFile("content")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer file.Close()
	content, _ := io.ReadAll(file)

	pkg := strings.ReplaceAll(strings.TrimSuffix(header.Filename, path.Ext(header.Filename)), "_", "-")
	version := "sha256:" + fmt.Sprintf("%x", len(content))

	f.mu.Lock()
	if f.builder.tags[pkg] == nil {
		f.builder.tags[pkg] = map[string]string{}
	}
	for _, tag := range r.MultipartForm.Value["tags"] {
		f.builder.tags[pkg][tag] = version
		f.builder.templates[pkg+"/"+tag] = string(content)
	}
	f.builder.templates[pkg+"/"+version] = string(content)
	f.mu.Unlock()

	_, _ = io.WriteString(w, pkg+"/"+version)
}

// GetCalls returns every recorded request.
func (f *FakeVertex) GetCalls() []CallRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]CallRecord, len(f.calls))
	copy(out, f.calls)
	return out
}

// GetCallsByMethod returns the requests with the given HTTP method whose
// path contains pathSubstr.
func (f *FakeVertex) GetCallsByMethod(method, pathSubstr string) []CallRecord {
	var out []CallRecord
	for _, c := range f.GetCalls() {
		if c.Method == method && strings.Contains(c.Path, pathSubstr) {
			out = append(out, c)
		}
	}
	return out
}

// AssertCalled fails the test unless a matching request was received.
func (f *FakeVertex) AssertCalled(t *testing.T, method, pathSubstr string) {
	t.Helper()
	if len(f.GetCallsByMethod(method, pathSubstr)) == 0 {
		t.Errorf("expected %s request with path containing %q, got %d requests", method, pathSubstr, len(f.GetCalls()))
	}
}

// AssertNotCalled fails the test if a matching request was received.
func (f *FakeVertex) AssertNotCalled(t *testing.T, method, pathSubstr string) {
	t.Helper()
	if calls := f.GetCallsByMethod(method, pathSubstr); len(calls) > 0 {
		t.Errorf("expected no %s request with path containing %q, got %d", method, pathSubstr, len(calls))
	}
}

// DecodeProto unmarshals the body of the last matching request into a
// client library message.
func (f *FakeVertex) DecodeProto(t *testing.T, method, pathSubstr string, m proto.Message) {
	t.Helper()
	calls := f.GetCallsByMethod(method, pathSubstr)
	if len(calls) == 0 {
		t.Fatalf("no %s request with path containing %q", method, pathSubstr)
	}
	if err := (protojson.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(calls[len(calls)-1].Body, m); err != nil {
		t.Fatalf("decoding %s %s body: %v", method, pathSubstr, err)
	}
}
