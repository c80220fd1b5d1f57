package patcher

import (
	"fmt"
	"strings"
)

// Router anchors.
const (
	routerImportNeedle      = "import logging\nfrom typing import Optional\n"
	routerImportReplacement = "import logging\nimport os\nfrom pathlib import Path\nfrom typing import Optional\n"
	reasoningHandlerAnchor  = "def openai_reasoning_model_handler(payload):"
	payloadCallAnchor       = "    # Check if model is a reasoning model that needs special handling\n"
	payloadCallInjection    = "    payload = apply_mittwald_chat_defaults(payload, user=user)\n\n" + payloadCallAnchor
)

// Users model anchors.
const (
	usersImportNeedle      = "import time\nfrom typing import Optional\n"
	usersImportReplacement = "import json\n" +
		"import os\n" +
		"import time\n" +
		"from pathlib import Path\n" +
		"from typing import Any, Dict, Optional\n"
	usersClassAnchor  = "class UsersTable:\n"
	userInsertAnchor  = "                    \"oauth\": oauth,\n"
	userInsertSetting = "                    \"settings\": build_mittwald_initial_user_settings(),\n"
	usersMergeAnchor  = "                if user_settings is None:\n" +
		"                    user_settings = {}\n\n" +
		"                user_settings.update(updated)\n\n" +
		"                db.query(User).filter_by(id=id).update({\"settings\": user_settings})\n"
	usersMergeReplacement = "                if user_settings is None or not isinstance(user_settings, dict):\n" +
		"                    user_settings = {}\n\n" +
		"                updates = updated if isinstance(updated, dict) else {}\n" +
		"                user_settings = deep_merge_user_settings(user_settings, updates)\n\n" +
		"                db.query(User).filter_by(id=id).update({\"settings\": user_settings})\n"
)

func containsMarker(src, marker string) bool {
	return strings.Contains(src, marker)
}

// replaceOnce swaps the first occurrence of anchor, failing when absent.
func replaceOnce(src, anchor, replacement, what string) (string, error) {
	if !strings.Contains(src, anchor) {
		return "", fmt.Errorf("%w: %s", ErrAnchorNotFound, what)
	}
	return strings.Replace(src, anchor, replacement, 1), nil
}

func patchRouterSource(src, helperBlock string) (string, error) {
	var err error
	if src, err = replaceOnce(src, routerImportNeedle, routerImportReplacement, "import insertion"); err != nil {
		return "", err
	}
	if src, err = replaceOnce(src, reasoningHandlerAnchor,
		"\n"+helperBlock+"\n"+reasoningHandlerAnchor, "openai_reasoning_model_handler"); err != nil {
		return "", err
	}
	if src, err = replaceOnce(src, payloadCallAnchor, payloadCallInjection, "payload injection"); err != nil {
		return "", err
	}
	return src, nil
}

func patchUsersSource(src, helperBlock string) (string, error) {
	var err error
	if src, err = replaceOnce(src, usersImportNeedle, usersImportReplacement, "users import insertion"); err != nil {
		return "", err
	}
	if src, err = replaceOnce(src, usersClassAnchor,
		"\n"+helperBlock+"\n\n"+usersClassAnchor, "users class"); err != nil {
		return "", err
	}
	if src, err = replaceOnce(src, userInsertAnchor, userInsertAnchor+userInsertSetting, "users insert"); err != nil {
		return "", err
	}
	if src, err = replaceOnce(src, usersMergeAnchor, usersMergeReplacement, "users deep-merge"); err != nil {
		return "", err
	}
	return src, nil
}
