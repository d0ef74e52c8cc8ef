// Package settings loads vertex-deployer settings.
//
// DeployerSettings are project defaults for every command, layered as
// built-in defaults, then vertex-deployer.yml, then VERTEX_DEPLOYER_*
// environment variables. VertexSettings describe the Google Cloud target
// and come from a dotenv file overlaid with the process environment.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// FileName is the project settings file, looked up in the working directory.
const FileName = "vertex-deployer.yml"

// EnvPrefix prefixes environment overrides. Nested keys use a double
// underscore: VERTEX_DEPLOYER_DEPLOY__RUN=true sets deploy.run.
const EnvPrefix = "VERTEX_DEPLOYER_"

// DeployerSettings holds project defaults for every command.
type DeployerSettings struct {
	PipelinesRootPath string         `koanf:"pipelines_root_path" validate:"required"`
	ConfigRootPath    string         `koanf:"config_root_path" validate:"required"`
	LogLevel          string         `koanf:"log_level" validate:"oneof=debug info warn warning error critical DEBUG INFO WARN WARNING ERROR CRITICAL"`
	Deploy            DeploySettings `koanf:"deploy"`
	Check             CheckSettings  `koanf:"check"`
	List              ListSettings   `koanf:"list"`
	Create            CreateSettings `koanf:"create"`
}

// DeploySettings are defaults for the deploy command.
type DeploySettings struct {
	EnvFile            string   `koanf:"env_file"`
	Compile            bool     `koanf:"compile"`
	Upload             bool     `koanf:"upload"`
	Run                bool     `koanf:"run"`
	Schedule           bool     `koanf:"schedule"`
	Cron               string   `koanf:"cron"`
	DeleteLastSchedule bool     `koanf:"delete_last_schedule"`
	SchedulerTimezone  string   `koanf:"scheduler_timezone" validate:"required"`
	Tags               []string `koanf:"tags" validate:"dive,required"`
	ConfigFilepath     string   `koanf:"config_filepath"`
	ConfigName         string   `koanf:"config_name"`
	EnableCaching      bool     `koanf:"enable_caching"`
	ExperimentName     string   `koanf:"experiment_name"`
	LocalPackagePath   string   `koanf:"local_package_path" validate:"required"`
	SkipValidation     bool     `koanf:"skip_validation"`
}

// CheckSettings are defaults for the check command.
type CheckSettings struct {
	All            bool   `koanf:"all"`
	ConfigFilepath string `koanf:"config_filepath"`
	RaiseError     bool   `koanf:"raise_error"`
	WarnDefaults   bool   `koanf:"warn_defaults"`
}

// ListSettings are defaults for the list command.
type ListSettings struct {
	WithConfigs bool `koanf:"with_configs"`
}

// CreateSettings are defaults for the create command.
type CreateSettings struct {
	ConfigType string `koanf:"config_type" validate:"oneof=json yaml toml py hcl"`
}

// InvalidSettingsError reports a settings file that cannot be loaded.
type InvalidSettingsError struct {
	Path string
	Err  error
}

func (e *InvalidSettingsError) Error() string {
	return fmt.Sprintf("invalid settings in %s: %v", e.Path, e.Err)
}

func (e *InvalidSettingsError) Unwrap() error {
	return e.Err
}

// Load reads settings from path. A missing file yields the defaults.
// Priority: environment > settings file > defaults.
func Load(path string) (*DeployerSettings, error) {
	k := koanf.New(".")

	for key, value := range Defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("applying default %s: %w", key, err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, &InvalidSettingsError{Path: path, Err: err}
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading settings: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading settings from environment: %w", err)
	}

	var s DeployerSettings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, &InvalidSettingsError{Path: path, Err: err}
	}
	if err := validator.New().Struct(s); err != nil {
		return nil, &InvalidSettingsError{Path: path, Err: err}
	}
	return &s, nil
}

// envTransform maps VERTEX_DEPLOYER_DEPLOY__ENABLE_CACHING to
// deploy.enable_caching.
func envTransform(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}
