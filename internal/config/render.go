package config

import (
	"fmt"
	"strings"
)

// RenderDefaultTOML renders a TOML config with defaults from GetConfigOptions.
func RenderDefaultTOML() string {
	var b strings.Builder
	b.WriteString("# oneshot configuration (TOML)\n\n")

	top, sections, order := groupOptions(GetConfigOptions())
	for _, o := range top {
		writeTOMLOption(&b, o)
	}
	for _, section := range order {
		b.WriteString("[" + section + "]\n")
		for _, o := range sections[section] {
			writeTOMLOption(&b, o)
		}
	}
	return b.String()
}

// UpdateTOML merges missing defaults into an existing TOML document and
// comments out keys that are no longer known. Missing keys go under their
// existing table header, or into a new table at the end. It reports whether
// anything changed.
func UpdateTOML(existing string) (string, bool) {
	known := make(map[string]bool)
	present := make(map[string]bool)
	section := ""
	for _, line := range strings.Split(existing, "\n") {
		trim := strings.TrimSpace(line)
		if name, ok := parseTOMLSection(trim); ok {
			section = name
			continue
		}
		if key, ok := parseTOMLKey(trim); ok {
			present[joinKey(section, key)] = true
		}
	}
	var missing []ConfigOption
	for _, o := range GetConfigOptions() {
		known[o.Key] = true
		if !present[o.Key] {
			missing = append(missing, o)
		}
	}
	top, sections, order := groupOptions(missing)

	changed := len(missing) > 0
	var out []string
	for _, o := range top {
		out = appendOption(out, o)
	}
	section = ""
	for _, line := range strings.Split(existing, "\n") {
		trim := strings.TrimSpace(line)
		if name, ok := parseTOMLSection(trim); ok {
			section = name
			out = append(out, line)
			for _, o := range sections[name] {
				out = appendOption(out, o)
			}
			delete(sections, name)
			continue
		}
		if key, ok := parseTOMLKey(trim); ok && !strings.HasPrefix(trim, "#") && !known[joinKey(section, key)] {
			indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
			out = append(out, indent+"# OUTDATED: option removed from config schema", indent+"# "+trim)
			changed = true
			continue
		}
		out = append(out, line)
	}
	for _, name := range order {
		opts, ok := sections[name]
		if !ok {
			continue
		}
		out = append(out, "", "["+name+"]")
		for _, o := range opts {
			out = appendOption(out, o)
		}
	}
	if !changed {
		return existing, false
	}
	return strings.Join(out, "\n"), true
}

func appendOption(lines []string, o ConfigOption) []string {
	var b strings.Builder
	writeTOMLOption(&b, o)
	return append(lines, strings.Split(strings.TrimRight(b.String(), "\n"), "\n")...)
}

func joinKey(section, key string) string {
	if section == "" {
		return key
	}
	return section + "." + key
}

func parseTOMLSection(trim string) (string, bool) {
	if !strings.HasPrefix(trim, "[") || !strings.HasSuffix(trim, "]") {
		return "", false
	}
	return strings.TrimSpace(trim[1 : len(trim)-1]), true
}

func groupOptions(opts []ConfigOption) ([]ConfigOption, map[string][]ConfigOption, []string) {
	var top []ConfigOption
	sections := make(map[string][]ConfigOption)
	var order []string
	for _, o := range opts {
		section, key, ok := strings.Cut(o.Key, ".")
		if !ok {
			top = append(top, o)
			continue
		}
		if _, exists := sections[section]; !exists {
			order = append(order, section)
		}
		sections[section] = append(sections[section], ConfigOption{Key: key, Default: o.Default, Comment: o.Comment})
	}
	return top, sections, order
}

func parseTOMLKey(line string) (string, bool) {
	key, _, ok := strings.Cut(line, "=")
	if !ok {
		return "", false
	}
	key = strings.TrimSpace(key)
	if key == "" || strings.HasPrefix(key, "#") || strings.HasPrefix(key, "\"") || strings.HasPrefix(key, "'") {
		return "", false
	}
	return key, true
}

func writeTOMLOption(b *strings.Builder, o ConfigOption) {
	if o.Comment != "" {
		b.WriteString("# " + o.Comment + "\n")
	}
	switch v := o.Default.(type) {
	case string:
		fmt.Fprintf(b, "%s = %q\n\n", o.Key, v)
	case float64:
		fmt.Fprintf(b, "%s = %.1f\n\n", o.Key, v)
	default:
		fmt.Fprintf(b, "%s = %v\n\n", o.Key, v)
	}
}
