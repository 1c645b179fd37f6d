// Package dashboard renders Grafana dashboards for the exported tables.
package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/telemetry"
)

//go:embed templates/*.tmpl
var templates embed.FS

var templateFiles = []string{
	"templates/grafana-dashboard.json.tmpl",
}

// Params selects what the dashboard queries.
type Params struct {
	ReportTable  string
	CommandTable string
	// Node filters report rows to one receiving node, normally the aggregator.
	Node   string
	RiskCM float64
}

// DefaultParams uses the configured table names and the aggregator's rows.
func DefaultParams() Params {
	return Params{
		ReportTable:  telemetry.ReportTableName,
		CommandTable: telemetry.CommandTableName,
		Node:         "aggregator",
		RiskCM:       6.0,
	}
}

// Render parses dashboard templates and writes rendered dashboards to outDir.
// GREPTIMEDB_DATASOURCE_UID must be set.
func Render(outDir string, p Params) error {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, tplName := range templateFiles {
		t, err := template.New(filepath.Base(tplName)).Funcs(funcMap).ParseFS(templates, tplName)
		if err != nil {
			return err
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(tplName), ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := t.Execute(f, p); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
