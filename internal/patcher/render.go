package patcher

import (
	"bytes"
	"embed"
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/template"

	"github.com/mittwald/owui-bootstrap/internal/chatparams"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var helperTemplates = template.Must(
	template.New("helpers").Delims("<%", "%>").ParseFS(templatesFS, "templates/*.tmpl"),
)

// fractionalKeys are rendered with a decimal point even when integral, so
// the generated Python keeps float semantics for them.
var fractionalKeys = map[string]bool{
	"temperature":        true,
	"top_p":              true,
	"min_p":              true,
	"repetition_penalty": true,
	"presence_penalty":   true,
	"frequency_penalty":  true,
	"mirostat_eta":       true,
	"mirostat_tau":       true,
	"tfs_z":              true,
}

// numberLiteral formats v the way Python would print it for key.
func numberLiteral(key string, v float64) string {
	if v == math.Trunc(v) && fractionalKeys[key] {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// orderedKeys returns core keys first, then the rest sorted.
func orderedKeys(p chatparams.Params) []string {
	keys := make([]string, 0, len(p))
	for _, k := range chatparams.CoreKeys {
		if _, ok := p[k]; ok {
			keys = append(keys, k)
		}
	}
	for _, k := range p.Keys() {
		if !isCoreKey(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

func isCoreKey(k string) bool {
	for _, c := range chatparams.CoreKeys {
		if c == k {
			return true
		}
	}
	return false
}

func writeParamsDict(b *strings.Builder, p chatparams.Params, indent string) {
	b.WriteString("{\n")
	for _, k := range orderedKeys(p) {
		fmt.Fprintf(b, "%s    %q: %s,\n", indent, k, numberLiteral(k, p[k]))
	}
	b.WriteString(indent + "}")
}

// renderTables emits the Python constant tables shared by both helper
// blocks. spaced separates the tables with a blank line.
func renderTables(set *chatparams.ProfileSet, spaced bool) string {
	sep := "\n"
	if spaced {
		sep = "\n\n"
	}
	var b strings.Builder

	b.WriteString("MITTWALD_MODEL_PROFILES = {\n")
	for _, p := range set.Profiles {
		fmt.Fprintf(&b, "    %q: ", p.Key)
		writeParamsDict(&b, p.Params, "    ")
		b.WriteString(",\n")
	}
	b.WriteString("}" + sep)

	b.WriteString("MITTWALD_FALLBACK_PROFILE = ")
	writeParamsDict(&b, set.Fallback, "")
	b.WriteString(sep)

	b.WriteString("MITTWALD_ALLOWED_CHAT_PARAM_KEYS = {\n")
	for _, k := range chatparams.AllowedKeyList {
		fmt.Fprintf(&b, "    %q,\n", k)
	}
	b.WriteString("}" + sep)

	b.WriteString("MITTWALD_CANONICAL_CHAT_PARAM_KEYS = {\n")
	for _, a := range chatparams.CanonicalAliases {
		fmt.Fprintf(&b, "    %q: %q,\n", a.From, a.To)
	}
	b.WriteString("}" + sep)

	b.WriteString("MITTWALD_ENV_DEFAULTS = {\n")
	for _, k := range chatparams.CoreKeys {
		fmt.Fprintf(&b, "    %q: %q,\n", k, chatparams.EnvKey(k))
	}
	b.WriteString("}")

	return b.String()
}

type helperData struct {
	Marker             string
	Tables             string
	HyperparamsPath    string
	DiscoveryCachePath string
}

func renderHelper(name string, data helperData) (string, error) {
	var buf bytes.Buffer
	if err := helperTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
