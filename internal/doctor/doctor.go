// Package doctor validates querydeck configuration against the plugins and
// connections the host would actually start with.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattjoyce/querydeck/internal/config"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates configuration against the available plugin set.
type Doctor struct {
	cfg        *config.Config
	configPath string
	available  map[string]bool
}

// New creates a Doctor. available lists the plugin names compiled into this
// binary; configPath points at the loaded file for integrity checks and may
// be empty when running on defaults.
func New(cfg *config.Config, configPath string, available []string) *Doctor {
	set := make(map[string]bool, len(available))
	for _, name := range available {
		set[name] = true
	}
	return &Doctor{cfg: cfg, configPath: configPath, available: set}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateServiceConfig(r)
	d.validatePluginRefs(r)
	d.validateAPIConfig(r)
	d.validatePanelConfig(r)
	d.validateConnections(r)
	d.warnUnreferencedPlugins(r)
	d.warnMissingChecksum(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateServiceConfig(r *Result) {
	if d.cfg.Service.Name == "" {
		d.addError(r, "service", "service.name", "service.name is required")
	}
	if d.cfg.Service.Namespace == "" {
		d.addError(r, "service", "service.namespace", "service.namespace is required")
	}
	if strings.Contains(d.cfg.Service.Namespace, ".") {
		d.addError(r, "service", "service.namespace",
			fmt.Sprintf("namespace %q must not contain dots, it is joined to command names with one", d.cfg.Service.Namespace))
	}
	if d.cfg.State.Path == "" {
		d.addError(r, "service", "state.path", "state.path is required")
	} else if dir := filepath.Dir(d.cfg.State.Path); !dirExists(dir) {
		d.addWarning(r, "service", "state.path",
			fmt.Sprintf("state directory %q does not exist yet, it will be created on startup", dir))
	}
}

// validatePluginRefs checks that configured plugins exist in this build.
func (d *Doctor) validatePluginRefs(r *Result) {
	for name, pc := range d.cfg.Plugins {
		if !pc.Enabled {
			continue
		}
		if !d.available[name] {
			d.addError(r, "plugin_refs", fmt.Sprintf("plugins.%s", name),
				fmt.Sprintf("plugin %q enabled in config but not compiled into this binary", name))
		}
	}
}

func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
	}
	if d.cfg.API.Auth.APIKey == "" {
		d.addWarning(r, "api", "api.auth.api_key",
			fmt.Sprintf("API enabled with no key; every protected route will return 401 (set %s)", config.EnvAPIKey))
	}
}

func (d *Doctor) validatePanelConfig(r *Result) {
	if d.cfg.Panel.Socket == "" {
		d.addError(r, "panel", "panel.socket", "panel.socket is required")
	}
	if d.cfg.Panel.PageSize <= 0 {
		d.addError(r, "panel", "panel.page_size", "page_size must be positive")
	} else if d.cfg.Panel.PageSize > 500 {
		d.addWarning(r, "panel", "panel.page_size",
			fmt.Sprintf("page_size %d is very large and will make result pushes slow", d.cfg.Panel.PageSize))
	}
}

// validateConnections checks connection ids and warns when file-backed DSNs
// point at directories that don't exist.
func (d *Doctor) validateConnections(r *Result) {
	if len(d.cfg.Connections) == 0 {
		d.addWarning(r, "connections", "connections",
			"no connections configured; every query will fail with an unknown connection error")
		return
	}

	for i, conn := range d.cfg.Connections {
		field := fmt.Sprintf("connections[%d]", i)
		if conn.ID == "" {
			d.addError(r, "connections", field+".id", "connection id is required")
		}
		if conn.DSN == "" {
			d.addError(r, "connections", field+".dsn", "connection dsn is required")
			continue
		}
		if path, ok := strings.CutPrefix(conn.DSN, "file:"); ok {
			path = strings.SplitN(path, "?", 2)[0]
			if !dirExists(filepath.Dir(path)) {
				d.addWarning(r, "connections", field+".dsn",
					fmt.Sprintf("directory for %q does not exist", conn.DSN))
			}
		}
	}
}

func (d *Doctor) warnUnreferencedPlugins(r *Result) {
	for name := range d.available {
		if _, inConfig := d.cfg.Plugins[name]; !inConfig {
			d.addWarning(r, "unused", "",
				fmt.Sprintf("plugin %q is available but not referenced in config (it will load enabled)", name))
		}
	}
}

func (d *Doctor) warnMissingChecksum(r *Result) {
	if d.configPath == "" {
		return
	}
	if err := config.VerifyChecksum(d.configPath); err != nil {
		d.addWarning(r, "integrity", "", err.Error())
	}
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
