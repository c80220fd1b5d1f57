package patcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/mittwald/owui-bootstrap/internal/chatparams"
	"github.com/mittwald/owui-bootstrap/internal/config"
	. "github.com/mittwald/owui-bootstrap/internal/logging"
)

// frontendKeys are the chat controls whose compiled fallback gets replaced.
var frontendKeys = []string{"temperature", "top_p", "top_k", "max_tokens"}

// FrontendDefault is one replacement applied to the compiled bundle.
type FrontendDefault struct {
	Key   string
	Value string
}

// FrontendResult counts what the frontend stage changed.
type FrontendResult struct {
	Skipped      bool
	Files        int
	Replacements int
}

// FrontendDefaults derives the bundle replacements from a params set.
func FrontendDefaults(p chatparams.Params) []FrontendDefault {
	out := make([]FrontendDefault, 0, len(frontendKeys))
	for _, k := range frontendKeys {
		if v, ok := p[k]; ok {
			out = append(out, FrontendDefault{Key: k, Value: strconv.FormatFloat(v, 'f', -1, 64)})
		}
	}
	return out
}

// frontendPattern matches the minified `(x.<key>)??null)===null?<default>:null,!0)`
// expression that seeds a chat control.
func frontendPattern(key string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(\.` + regexp.QuoteMeta(key) + `\)\?\?null\)===null\?)([^:]+)(:null,!0\))`)
}

// PatchFrontend rewrites the chat control fallbacks in every .js file below
// root. A missing root is not an error.
func PatchFrontend(root string, defaults []FrontendDefault) (FrontendResult, error) {
	var res FrontendResult
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			L_info("frontend bundle not found; skipping frontend patch", "root", root)
			return FrontendResult{Skipped: true}, nil
		}
		return res, err
	}

	patterns := make([]*regexp.Regexp, len(defaults))
	for i, d := range defaults {
		patterns[i] = frontendPattern(d.Key)
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".js") {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		src := string(raw)
		out := src
		for i, def := range defaults {
			n := len(patterns[i].FindAllStringIndex(out, -1))
			if n == 0 {
				continue
			}
			out = patterns[i].ReplaceAllString(out, "${1}"+def.Value+"${3}")
			res.Replacements += n
		}
		if out == src {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if err := config.AtomicWrite(path, []byte(out), info.Mode().Perm()); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		res.Files++
		return nil
	})
	if err != nil {
		return res, err
	}

	L_info("frontend chat defaults patch applied", "files", res.Files, "replacements", res.Replacements)
	return res, nil
}
