package export

import (
	"bytes"
	"embed"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"grimm.is/cpmigrate/internal/objects"
)

// Template names.
const (
	AddressTemplate      = "address.xml"
	AddressGroupTemplate = "address_group.xml"
	ServiceTemplate      = "service.xml"
)

//go:embed templates/*.xml
var defaultTemplates embed.FS

// Renderer serializes an object into a PAN-OS XML element.
type Renderer interface {
	Render(obj objects.Object, template string) (string, error)
}

// TemplateRenderer renders objects with text/template.
type TemplateRenderer struct {
	tmpl *template.Template
}

var funcs = template.FuncMap{
	"x": escape,
}

func escape(s string) (string, error) {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return "", err
	}
	return b.String(), nil
}

// NewTemplateRenderer loads the built-in templates. When dir is not empty
// every *.xml file in it replaces the built-in template of the same name
// or adds a new one.
func NewTemplateRenderer(dir string) (*TemplateRenderer, error) {
	tmpl, err := template.New("export").Funcs(funcs).ParseFS(defaultTemplates, "templates/*.xml")
	if err != nil {
		return nil, fmt.Errorf("parse built-in templates: %w", err)
	}

	if dir != "" {
		files, err := filepath.Glob(filepath.Join(dir, "*.xml"))
		if err != nil {
			return nil, fmt.Errorf("list templates in %s: %w", dir, err)
		}
		for _, f := range files {
			data, err := os.ReadFile(f)
			if err != nil {
				return nil, fmt.Errorf("failed to read template: %w", err)
			}
			if _, err := tmpl.New(filepath.Base(f)).Parse(string(data)); err != nil {
				return nil, fmt.Errorf("parse template %s: %w", f, err)
			}
		}
	}
	return &TemplateRenderer{tmpl: tmpl}, nil
}

// Render executes the named template with obj as data.
func (r *TemplateRenderer) Render(obj objects.Object, name string) (string, error) {
	t := r.tmpl.Lookup(name)
	if t == nil {
		return "", fmt.Errorf("no template named %q", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, obj); err != nil {
		return "", fmt.Errorf("render %s with %s: %w", obj.Name(), name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
