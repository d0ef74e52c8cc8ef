package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// VertexSettings locate the Google Cloud resources used for deployment.
type VertexSettings struct {
	ProjectID          string `koanf:"PROJECT_ID" validate:"required"`
	GCPRegion          string `koanf:"GCP_REGION" validate:"required"`
	GARLocation        string `koanf:"GAR_LOCATION"`
	GARPipelinesRepoID string `koanf:"GAR_PIPELINES_REPO_ID"`
	StagingBucketName  string `koanf:"VERTEX_STAGING_BUCKET_NAME" validate:"required"`
	ServiceAccount     string `koanf:"VERTEX_SERVICE_ACCOUNT" validate:"required"`
}

var vertexKeys = []string{
	"PROJECT_ID",
	"GCP_REGION",
	"GAR_LOCATION",
	"GAR_PIPELINES_REPO_ID",
	"VERTEX_STAGING_BUCKET_NAME",
	"VERTEX_SERVICE_ACCOUNT",
}

// VertexEnvKeys returns the environment variables read by LoadVertex.
func VertexEnvKeys() []string {
	return append([]string(nil), vertexKeys...)
}

// MissingVertexSettingsError lists required variables that are unset.
type MissingVertexSettingsError struct {
	Missing []string
}

func (e *MissingVertexSettingsError) Error() string {
	return "missing Vertex settings: " + strings.Join(e.Missing, ", ")
}

// StagingBucketURI returns gs://{bucket}.
func (v *VertexSettings) StagingBucketURI() string {
	return "gs://" + v.StagingBucketName
}

// LoadVertex reads the dotenv file at envFile, when given, and overlays the
// process environment. The environment wins.
func LoadVertex(envFile string) (*VertexSettings, error) {
	k := koanf.New(".")

	if envFile != "" {
		if _, err := os.Stat(envFile); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("env file %s: %w", envFile, err)
			}
			return nil, fmt.Errorf("reading env file: %w", err)
		}
		if err := k.Load(file.Provider(envFile), dotenv.Parser()); err != nil {
			return nil, &InvalidSettingsError{Path: envFile, Err: err}
		}
	}

	known := make(map[string]bool, len(vertexKeys))
	for _, key := range vertexKeys {
		known[key] = true
	}
	envOnly := func(s string) string {
		if known[s] {
			return s
		}
		return ""
	}
	if err := k.Load(env.Provider("", ".", envOnly), nil); err != nil {
		return nil, fmt.Errorf("loading Vertex settings from environment: %w", err)
	}

	var v VertexSettings
	if err := k.Unmarshal("", &v); err != nil {
		return nil, fmt.Errorf("decoding Vertex settings: %w", err)
	}
	if err := validator.New().Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			missing := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				missing = append(missing, vertexKeyFor(fe.StructField()))
			}
			sort.Strings(missing)
			return nil, &MissingVertexSettingsError{Missing: missing}
		}
		return nil, err
	}
	return &v, nil
}

func vertexKeyFor(field string) string {
	switch field {
	case "ProjectID":
		return "PROJECT_ID"
	case "GCPRegion":
		return "GCP_REGION"
	case "StagingBucketName":
		return "VERTEX_STAGING_BUCKET_NAME"
	case "ServiceAccount":
		return "VERTEX_SERVICE_ACCOUNT"
	}
	return field
}
