// Package culprit attributes an error to the component that most likely caused it.
package culprit

import (
	"regexp"
	"strings"
)

// Unknown is returned when no component can be derived from the path.
const Unknown = "Unknown"

// Core is returned for files that belong to the host framework itself.
const Core = "WordPress Core"

var (
	pluginPattern = regexp.MustCompile(`wp-content/plugins/([^/]+)`)
	themePattern  = regexp.MustCompile(`wp-content/themes/([^/]+)`)
	modulePattern = regexp.MustCompile(`/pkg/mod/(.+?)@`)
)

// Detect returns a best-guess origin for the file path, such as "Plugin: akismet".
func Detect(path string) string {
	if path == "" {
		return Unknown
	}
	path = strings.ReplaceAll(path, `\`, "/")

	if m := pluginPattern.FindStringSubmatch(path); m != nil {
		return "Plugin: " + m[1]
	}
	if m := themePattern.FindStringSubmatch(path); m != nil {
		return "Theme: " + m[1]
	}
	if strings.Contains(path, "wp-includes/") || strings.Contains(path, "wp-admin/") {
		return Core
	}
	if m := modulePattern.FindStringSubmatch(path); m != nil {
		return "Module: " + m[1]
	}
	return Unknown
}
