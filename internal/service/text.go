package service

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var plainTextPolicy = bluemonday.StrictPolicy()

// sanitizePlain 去掉所有标记，用于名称、标题等纯文本字段
func sanitizePlain(value string) string {
	cleaned := plainTextPolicy.Sanitize(strings.TrimSpace(value))
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
