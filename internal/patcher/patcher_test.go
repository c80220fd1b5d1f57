package patcher

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mittwald/owui-bootstrap/internal/chatparams"
)

const routerFixture = `import json
import logging
from typing import Optional

log = logging.getLogger(__name__)


def openai_reasoning_model_handler(payload):
    return payload


async def generate_chat_completion(request, form_data, user):
    payload = {**form_data}
    # Check if model is a reasoning model that needs special handling
    if is_reasoning_model(payload):
        payload = openai_reasoning_model_handler(payload)
`

const usersFixture = `import time
from typing import Optional


class UsersTable:
    def insert_new_user(self, id, name, email, oauth=None):
        with get_db() as db:
            user = UserModel(
                **{
                    "id": id,
                    "oauth": oauth,
                }
            )

    def update_user_settings_by_id(self, id, updated):
        with get_db() as db:
            user_settings = db.query(User).filter_by(id=id).first().settings

                if user_settings is None:
                    user_settings = {}

                user_settings.update(updated)

                db.query(User).filter_by(id=id).update({"settings": user_settings})
`

type fixture struct {
	opts Options
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	router := filepath.Join(dir, "routers", "openai.py")
	users := filepath.Join(dir, "models", "users.py")
	bundle := filepath.Join(dir, "immutable")
	require.NoError(t, os.MkdirAll(filepath.Dir(router), 0755))
	require.NoError(t, os.MkdirAll(filepath.Dir(users), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(bundle, "chunks"), 0755))
	require.NoError(t, os.WriteFile(router, []byte(routerFixture), 0644))
	require.NoError(t, os.WriteFile(users, []byte(usersFixture), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(bundle, "chunks", "app.js"),
		[]byte(`a=(e.temperature)??null)===null?0.8:null,!0);b=(e.TOP_K)??null)===null?40:null,!0);`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(bundle, "chunks", "app.css"),
		[]byte(`.temperature)??null)===null?0.8:null,!0)`), 0644))

	return fixture{opts: Options{
		RouterPath:         router,
		UsersPath:          users,
		FrontendRoot:       bundle,
		HyperparamsPath:    "/srv/hf.json",
		DiscoveryCachePath: "/srv/discovery.json",
	}}
}

func read(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestRunPatchesAllStages(t *testing.T) {
	f := newFixture(t)

	res, err := Run(f.opts)
	require.NoError(t, err)
	assert.True(t, res.Router.Applied)
	assert.True(t, res.Users.Applied)
	assert.Equal(t, 1, res.Frontend.Files)
	assert.Equal(t, 2, res.Frontend.Replacements)

	router := read(t, f.opts.RouterPath)
	assert.Contains(t, router, "import logging\nimport os\nfrom pathlib import Path\nfrom typing import Optional\n")
	assert.Contains(t, router, "# "+RouterMarker+"\nMITTWALD_MODEL_PROFILES = {\n    \"ministral\": {\n        \"temperature\": 0.1,")
	assert.Contains(t, router, "\"repetition_penalty\": 1.0,")
	assert.Contains(t, router, "\"max_tokens\": 8192,")
	assert.Contains(t, router, "\"/srv/hf.json\"")
	assert.Contains(t, router, "# END "+RouterMarker+"\n\ndef openai_reasoning_model_handler(payload):")
	assert.Contains(t, router, "    payload = apply_mittwald_chat_defaults(payload, user=user)\n\n    # Check if model")
	assert.Less(t, strings.Index(router, "def apply_mittwald_chat_defaults"), strings.Index(router, "def openai_reasoning_model_handler"))

	users := read(t, f.opts.UsersPath)
	assert.Contains(t, users, "from typing import Any, Dict, Optional\n")
	assert.Contains(t, users, "\"/srv/discovery.json\"")
	assert.Contains(t, users, "# END "+UsersMarker+"\n\n\nclass UsersTable:\n")
	assert.Contains(t, users, "\"oauth\": oauth,\n                    \"settings\": build_mittwald_initial_user_settings(),\n")
	assert.Contains(t, users, "user_settings = deep_merge_user_settings(user_settings, updates)")
	assert.NotContains(t, users, "user_settings.update(updated)")

	js := read(t, filepath.Join(f.opts.FrontendRoot, "chunks", "app.js"))
	assert.Equal(t, `a=(e.temperature)??null)===null?0.1:null,!0);b=(e.TOP_K)??null)===null?10:null,!0);`, js)
	assert.Contains(t, read(t, filepath.Join(f.opts.FrontendRoot, "chunks", "app.css")), "?0.8:")
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	_, err := Run(f.opts)
	require.NoError(t, err)
	router := read(t, f.opts.RouterPath)
	users := read(t, f.opts.UsersPath)

	res, err := Run(f.opts)
	require.NoError(t, err)
	assert.True(t, res.Router.AlreadyPatched)
	assert.True(t, res.Users.AlreadyPatched)
	assert.Equal(t, 0, res.Frontend.Files)
	assert.Equal(t, router, read(t, f.opts.RouterPath))
	assert.Equal(t, users, read(t, f.opts.UsersPath))
}

func TestPatchedRouterStillPatchesUsers(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.opts.RouterPath, []byte("# "+RouterMarker+"\n"), 0644))

	res, err := Run(f.opts)
	require.NoError(t, err)
	assert.True(t, res.Router.AlreadyPatched)
	assert.True(t, res.Users.Applied)
}

func TestMissingAnchorLeavesFileUntouched(t *testing.T) {
	f := newFixture(t)
	broken := strings.Replace(routerFixture, payloadCallAnchor, "", 1)
	require.NoError(t, os.WriteFile(f.opts.RouterPath, []byte(broken), 0644))

	_, err := Run(f.opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAnchorNotFound))
	assert.Equal(t, broken, read(t, f.opts.RouterPath))
	assert.Equal(t, usersFixture, read(t, f.opts.UsersPath))
}

func TestMissingTarget(t *testing.T) {
	f := newFixture(t)
	f.opts.UsersPath = filepath.Join(t.TempDir(), "nope.py")

	_, err := Run(f.opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTargetMissing))
}

func TestFrontendMissingRootIsSkipped(t *testing.T) {
	res, err := PatchFrontend(filepath.Join(t.TempDir(), "absent"), nil)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestFrontendDefaultsFollowFallback(t *testing.T) {
	got := FrontendDefaults(chatparams.DefaultProfiles().Fallback)
	assert.Equal(t, []FrontendDefault{
		{"temperature", "0.1"},
		{"top_p", "0.5"},
		{"top_k", "10"},
		{"max_tokens", "4096"},
	}, got)
}

func TestRenderTablesLayout(t *testing.T) {
	set := &chatparams.ProfileSet{
		Fallback: chatparams.Params{"temperature": 1, "top_k": 5, "seed": 3},
	}
	out := renderTables(set, false)

	assert.Contains(t, out, "MITTWALD_MODEL_PROFILES = {\n}\nMITTWALD_FALLBACK_PROFILE = {\n    \"temperature\": 1.0,\n    \"top_k\": 5,\n    \"seed\": 3,\n}\n")
	assert.Contains(t, out, "    \"num_predict\": \"max_tokens\",\n")
	assert.True(t, strings.HasSuffix(out, "    \"max_tokens\": \"OWUI_BOOTSTRAP_MAX_TOKENS\",\n}"))
}
