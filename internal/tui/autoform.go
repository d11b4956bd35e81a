package tui

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/charmbracelet/huh"

	"grimm.is/cpmigrate/internal/validation"
)

// AutoForm generates a huh.Form from a struct pointer using reflection.
// It parses the `tui:"..."` tag to configure field properties. When only is
// non-empty, fields whose Go name is not listed are left out.
func AutoForm(v any, only ...string) *huh.Form {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		panic("AutoForm requires a pointer to a struct")
	}

	el := val.Elem()
	t := el.Type()
	var fields []huh.Field

	for i := 0; i < el.NumField(); i++ {
		field := el.Field(i)
		fieldType := t.Field(i)
		tag := fieldType.Tag.Get("tui")
		if tag == "" {
			continue
		}
		if len(only) > 0 && !slices.Contains(only, fieldType.Name) {
			continue
		}

		props := parseTag(tag)
		title := props["title"]
		if title == "" {
			title = fieldType.Name
		}
		desc := props["desc"]

		switch field.Kind() {
		case reflect.String:
			if optsStr, ok := props["options"]; ok {
				var selectOpts []huh.Option[string]
				for _, o := range strings.Split(optsStr, "|") {
					key, val, found := strings.Cut(o, ":")
					if !found {
						val = key
					}
					selectOpts = append(selectOpts, huh.NewOption(strings.TrimSpace(key), strings.TrimSpace(val)))
				}
				fields = append(fields, huh.NewSelect[string]().
					Title(title).
					Description(desc).
					Options(selectOpts...).
					Value(field.Addr().Interface().(*string)))
				continue
			}

			input := huh.NewInput().
				Title(title).
				Description(desc).
				Value(field.Addr().Interface().(*string))
			if props["type"] == "password" {
				input.EchoMode(huh.EchoModePassword)
			}
			if vKey, ok := props["validate"]; ok {
				if validator, exists := Validators[vKey]; exists {
					input.Validate(validator)
				}
			}
			fields = append(fields, input)

		case reflect.Bool:
			fields = append(fields, huh.NewConfirm().
				Title(title).
				Description(desc).
				Value(field.Addr().Interface().(*bool)))
		}
	}

	return huh.NewForm(
		huh.NewGroup(fields...),
	).WithTheme(huh.ThemeBase16())
}

// parseTag parses "key=val,key2=val2".
func parseTag(tag string) map[string]string {
	res := make(map[string]string)
	for _, part := range strings.Split(tag, ",") {
		k, v, ok := strings.Cut(part, "=")
		if ok {
			res[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return res
}

// Validators usable from the validate tag key.
var Validators = map[string]func(string) error{
	"required": func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("this field is required")
		}
		return nil
	},
	"host": func(s string) error {
		s = strings.TrimSpace(s)
		if s == "" {
			return fmt.Errorf("this field is required")
		}
		if strings.ContainsAny(s, " /") && !strings.HasPrefix(s, "https://") {
			return fmt.Errorf("must be a host name or address, optionally with :port")
		}
		return nil
	},
	"cidr": func(s string) error {
		if s == "" {
			return nil
		}
		if !strings.Contains(s, "/") || validation.ValidateIPOrCIDR(s) != nil {
			return fmt.Errorf("must be a valid CIDR (e.g. 192.168.1.0/24)")
		}
		return nil
	},
}
