package settings

import (
	"fmt"
	"sort"
	"strings"
)

// ValueType is the expected type of a settings value.
type ValueType int

const (
	TypeBool ValueType = iota
	TypeString
	TypeEnum
	TypeList
)

func (t ValueType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	case TypeEnum:
		return "enum"
	case TypeList:
		return "list"
	default:
		return "unknown"
	}
}

// KeySchema describes a settable key.
type KeySchema struct {
	Path          string
	Type          ValueType
	AllowedValues []string
	Description   string
}

// KnownKeys is the registry of keys accepted by `config set`.
var KnownKeys = map[string]KeySchema{
	"pipelines_root_path": {Path: "pipelines_root_path", Type: TypeString, Description: "Directory holding pipeline definitions"},
	"config_root_path":    {Path: "config_root_path", Type: TypeString, Description: "Directory holding per-pipeline config folders"},
	"log_level": {
		Path:          "log_level",
		Type:          TypeEnum,
		AllowedValues: []string{"debug", "info", "warn", "error"},
		Description:   "Minimum level of log messages",
	},
	"deploy.env_file":             {Path: "deploy.env_file", Type: TypeString, Description: "Dotenv file with the Vertex settings"},
	"deploy.compile":              {Path: "deploy.compile", Type: TypeBool, Description: "Compile the pipeline"},
	"deploy.upload":               {Path: "deploy.upload", Type: TypeBool, Description: "Upload the compiled pipeline to Artifact Registry"},
	"deploy.run":                  {Path: "deploy.run", Type: TypeBool, Description: "Submit a pipeline run"},
	"deploy.schedule":             {Path: "deploy.schedule", Type: TypeBool, Description: "Create a pipeline schedule"},
	"deploy.cron":                 {Path: "deploy.cron", Type: TypeString, Description: "Cron expression for schedules"},
	"deploy.delete_last_schedule": {Path: "deploy.delete_last_schedule", Type: TypeBool, Description: "Delete the previous schedule before creating a new one"},
	"deploy.scheduler_timezone":   {Path: "deploy.scheduler_timezone", Type: TypeString, Description: "Time zone applied to the cron expression"},
	"deploy.tags":                 {Path: "deploy.tags", Type: TypeList, Description: "Comma separated registry tags"},
	"deploy.config_filepath":      {Path: "deploy.config_filepath", Type: TypeString, Description: "Config file used for runs and schedules"},
	"deploy.config_name":          {Path: "deploy.config_name", Type: TypeString, Description: "Config file name within the pipeline config folder"},
	"deploy.enable_caching":       {Path: "deploy.enable_caching", Type: TypeBool, Description: "Enable step caching for runs"},
	"deploy.experiment_name":      {Path: "deploy.experiment_name", Type: TypeString, Description: "Vertex experiment receiving runs"},
	"deploy.local_package_path":   {Path: "deploy.local_package_path", Type: TypeString, Description: "Directory receiving compiled pipelines"},
	"deploy.skip_validation":      {Path: "deploy.skip_validation", Type: TypeBool, Description: "Skip the pipeline check before deploying"},
	"check.all":                   {Path: "check.all", Type: TypeBool, Description: "Check every pipeline"},
	"check.config_filepath":       {Path: "check.config_filepath", Type: TypeString, Description: "Single config file to check"},
	"check.raise_error":           {Path: "check.raise_error", Type: TypeBool, Description: "Exit with an error when a check fails"},
	"check.warn_defaults":         {Path: "check.warn_defaults", Type: TypeBool, Description: "Report fields that fall back to their default"},
	"list.with_configs":           {Path: "list.with_configs", Type: TypeBool, Description: "List config files with each pipeline"},
	"create.config_type": {
		Path:          "create.config_type",
		Type:          TypeEnum,
		AllowedValues: []string{"json", "yaml", "toml", "py", "hcl"},
		Description:   "Config file type generated by create",
	},
}

// UnknownKeyError is returned for keys missing from KnownKeys.
type UnknownKeyError struct {
	Key string
}

func (e UnknownKeyError) Error() string {
	return "unknown settings key: " + e.Key
}

// KeySchemaFor returns the schema of a known key.
func KeySchemaFor(path string) (KeySchema, error) {
	schema, ok := KnownKeys[path]
	if !ok {
		return KeySchema{}, UnknownKeyError{Key: path}
	}
	return schema, nil
}

// SortedKeys returns the known keys in lexical order.
func SortedKeys() []string {
	keys := make([]string, 0, len(KnownKeys))
	for k := range KnownKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseValue validates a command line value for key and converts it to the
// key's type.
func ParseValue(key, value string) (any, error) {
	schema, err := KeySchemaFor(key)
	if err != nil {
		return nil, err
	}
	switch schema.Type {
	case TypeBool:
		switch strings.ToLower(value) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("invalid boolean: %q (expected true or false)", value)
	case TypeEnum:
		for _, allowed := range schema.AllowedValues {
			if strings.EqualFold(value, allowed) {
				return allowed, nil
			}
		}
		return nil, fmt.Errorf("invalid value: %q (valid options: %s)", value, strings.Join(schema.AllowedValues, ", "))
	case TypeList:
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items, nil
	default:
		return value, nil
	}
}
