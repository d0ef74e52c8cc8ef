package settings

const (
	DefaultPipelinesRoot     = "vertex/pipelines"
	DefaultConfigsRoot       = "vertex/configs"
	DefaultLocalPackagePath  = "vertex/pipelines/compiled_pipelines"
	DefaultSchedulerTimezone = "Europe/Paris"
	DefaultTag               = "latest"
)

// Defaults returns the built-in settings keyed by dotted path.
func Defaults() map[string]any {
	return map[string]any{
		"pipelines_root_path":         DefaultPipelinesRoot,
		"config_root_path":            DefaultConfigsRoot,
		"log_level":                   "info",
		"deploy.env_file":             "",
		"deploy.compile":              true,
		"deploy.upload":               false,
		"deploy.run":                  false,
		"deploy.schedule":             false,
		"deploy.cron":                 "",
		"deploy.delete_last_schedule": false,
		"deploy.scheduler_timezone":   DefaultSchedulerTimezone,
		"deploy.tags":                 []string{DefaultTag},
		"deploy.config_filepath":      "",
		"deploy.config_name":          "",
		"deploy.enable_caching":       false,
		"deploy.experiment_name":      "",
		"deploy.local_package_path":   DefaultLocalPackagePath,
		"deploy.skip_validation":      false,
		"check.all":                   false,
		"check.config_filepath":       "",
		"check.raise_error":           false,
		"check.warn_defaults":         true,
		"list.with_configs":           false,
		"create.config_type":          "json",
	}
}
