package shared

import (
	"context"

	"github.com/vertex-deployer/deployer/internal/settings"
)

type settingsKey struct{}

type settingsValue struct {
	path     string
	settings *settings.DeployerSettings
}

// WithSettings returns a context carrying the loaded settings and the file
// they were read from.
func WithSettings(ctx context.Context, path string, s *settings.DeployerSettings) context.Context {
	return context.WithValue(ctx, settingsKey{}, settingsValue{path: path, settings: s})
}

// Settings returns the settings stored in ctx, or the defaults.
func Settings(ctx context.Context) *settings.DeployerSettings {
	if v, ok := ctx.Value(settingsKey{}).(settingsValue); ok && v.settings != nil {
		return v.settings
	}
	s, err := settings.Load("")
	if err != nil {
		return &settings.DeployerSettings{
			PipelinesRootPath: settings.DefaultPipelinesRoot,
			ConfigRootPath:    settings.DefaultConfigsRoot,
		}
	}
	return s
}

// SettingsPath returns the settings file path stored in ctx.
func SettingsPath(ctx context.Context) string {
	if v, ok := ctx.Value(settingsKey{}).(settingsValue); ok && v.path != "" {
		return v.path
	}
	return settings.FileName
}
