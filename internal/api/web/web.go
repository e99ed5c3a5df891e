// Package web embeds the console's HTML dashboard.
package web

import (
	"embed"
	"html/template"
)

//go:embed dashboard.html
var FS embed.FS

// Dashboard parses the embedded dashboard template.
func Dashboard() (*template.Template, error) {
	return template.New("dashboard.html").ParseFS(FS, "dashboard.html")
}
