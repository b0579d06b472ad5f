package classifier

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// MatchType selects how a rule's pattern is tested against a message.
type MatchType string

const (
	// MatchRegex tests the message with a case-insensitive regular expression.
	MatchRegex MatchType = "regex"
	// MatchLiteral tests for a case-insensitive substring.
	MatchLiteral MatchType = "literal"
)

// Severities reported by classification.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityUnknown  = "unknown"
)

// Rule is a pattern plus the diagnosis it implies.
type Rule struct {
	Type       MatchType `yaml:"type" json:"type"`
	Pattern    string    `yaml:"pattern" json:"pattern"`
	Category   string    `yaml:"category" json:"category"`
	Severity   string    `yaml:"severity" json:"severity"`
	Weight     int       `yaml:"weight" json:"weight"`
	Tags       []string  `yaml:"tags" json:"tags"`
	Suggestion string    `yaml:"suggestion" json:"suggestion"`
}

// Validate checks that a rule can be compiled into an engine.
func (r Rule) Validate() error {
	if r.Type != MatchRegex && r.Type != MatchLiteral {
		return fmt.Errorf("rule %q: unknown match type %q", r.Category, r.Type)
	}
	if r.Pattern == "" {
		return fmt.Errorf("rule %q: pattern is required", r.Category)
	}
	if r.Category == "" {
		return fmt.Errorf("rule with pattern %q: category is required", r.Pattern)
	}
	if r.Weight < 0 || r.Weight > 100 {
		return fmt.Errorf("rule %q: weight %d out of range 0-100", r.Category, r.Weight)
	}
	switch r.Severity {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
	default:
		return fmt.Errorf("rule %q: unknown severity %q", r.Category, r.Severity)
	}
	return nil
}

func regex(pattern, category, severity string, weight int, tags []string, suggestion string) Rule {
	return Rule{Type: MatchRegex, Pattern: pattern, Category: category, Severity: severity, Weight: weight, Tags: tags, Suggestion: suggestion}
}

func literal(pattern, category, severity string, weight int, tags []string, suggestion string) Rule {
	return Rule{Type: MatchLiteral, Pattern: pattern, Category: category, Severity: severity, Weight: weight, Tags: tags, Suggestion: suggestion}
}

var defaultRules = []Rule{
	regex(`Allowed memory size exhausted`, "Memory Exhaustion", SeverityCritical, 90,
		[]string{"memory", "php", "fatal"},
		"Increase WP_MEMORY_LIMIT in wp-config.php or inspect memory-heavy plugins."),
	regex(`Maximum execution time of \d+ seconds exceeded`, "Execution Timeout", SeverityCritical, 85,
		[]string{"timeout", "performance"},
		"Increase max_execution_time in php.ini or optimize long-running processes."),
	regex(`Call to undefined function`, "Missing Function", SeverityHigh, 80,
		[]string{"dependency", "plugin", "fatal"},
		"Ensure required plugin or dependency is active and loaded properly."),
	regex(`Call to undefined method`, "Missing Method", SeverityHigh, 80,
		[]string{"dependency", "code-error", "fatal"},
		"Plugin or class version mismatch. Verify compatibility and updates."),
	regex(`Class not found`, "Missing Class", SeverityHigh, 80,
		[]string{"autoloader", "dependency", "fatal"},
		"Autoloader issue or missing dependency. Check plugin installation integrity."),
	regex(`Cannot redeclare (class|function)`, "Redeclaration Conflict", SeverityHigh, 75,
		[]string{"conflict", "plugin"},
		"Possible plugin conflict or duplicate file inclusion."),
	regex(`WordPress database error`, "Database Error", SeverityCritical, 95,
		[]string{"database", "sql"},
		"Verify database credentials and check for corrupted tables."),
	regex(`Base table or view not found`, "Missing Database Table", SeverityCritical, 90,
		[]string{"database", "schema"},
		"Plugin activation may have failed. Try reactivating plugin."),
	regex(`MySQL server has gone away`, "Database Connection Lost", SeverityCritical, 95,
		[]string{"database", "timeout"},
		"Database server timed out or packet size is too large (max_allowed_packet)."),
	regex(`Parse error`, "Syntax Error", SeverityCritical, 100,
		[]string{"php", "syntax"},
		"Check PHP syntax in the referenced file."),
	regex(`TypeError`, "Type Mismatch", SeverityHigh, 70,
		[]string{"php", "types"},
		"Invalid parameter type passed to function. Review recent code changes."),
	regex(`Too few arguments to function`, "Argument Mismatch", SeverityHigh, 70,
		[]string{"php", "signature"},
		"Function signature mismatch. Check plugin version compatibility."),
	regex(`Undefined (array key|index|offset)`, "Undefined Array Key", SeverityLow, 50,
		[]string{"notice", "php"},
		"Check if array key/index exists before accessing it."),
	literal(`Trying to get property of non-object`, "Invalid Object Access", SeverityMedium, 60,
		[]string{"php", "logic"},
		"Object expected but null returned. Check conditional logic."),
	regex(`Call to a member function .* on null`, "Null Reference", SeverityHigh, 75,
		[]string{"php", "null"},
		"Object may not be initialized properly."),
	regex(`Cannot modify header information`, "Header Output Issue", SeverityMedium, 65,
		[]string{"php", "headers"},
		"Output was sent before headers. Check for whitespace or echo statements."),
	literal(`rest_no_route`, "Invalid REST Route", SeverityMedium, 55,
		[]string{"api", "rest"},
		"Ensure REST route is registered correctly."),
	regex(`session_start\(\)`, "Session Conflict", SeverityMedium, 50,
		[]string{"php", "session"},
		"Session may already be started by another plugin."),
	literal(`GD library`, "Image Processing Error", SeverityMedium, 50,
		[]string{"images", "extension"},
		"Ensure GD or Imagick extension is enabled."),
	literal(`Deprecated`, "Deprecated Function Usage", SeverityLow, 30,
		[]string{"php", "deprecated"},
		"Plugin may need update for current PHP version."),
	regex(`cURL error`, "HTTP Connection Failure", SeverityHigh, 70,
		[]string{"http", "network"},
		"External API request failed. Check server connectivity or firewall settings."),
	regex(`Call to (private|protected) method`, "Visibility Violation", SeverityHigh, 70,
		[]string{"php", "oop"},
		"Attempting to access a protected/private class method. Check plugin compatibility."),
	literal(`must be compatible with`, "Declaration Incompatibility", SeverityMedium, 60,
		[]string{"php", "oop", "strict"},
		"Child class method signature does not match parent. Update plugin/theme."),
	regex(`Division by zero`, "Math Error", SeverityMedium, 50,
		[]string{"php", "math"},
		"Code attempted to divide by zero. Check logical conditions."),
	regex(`json_decode`, "JSON Parsing Error", SeverityMedium, 50,
		[]string{"php", "json", "data"},
		"Failed to decode JSON data. Response might be malformed or empty."),
	regex(`Input variables exceeded`, "Max Input Vars Exceeded", SeverityHigh, 65,
		[]string{"php", "server", "limit"},
		"Menu/Form too large. Increase max_input_vars in php.ini."),
	regex(`failed to open stream: Permission denied`, "File Write Permission", SeverityHigh, 85,
		[]string{"filesystem", "permissions"},
		"Server cannot write to file/folder. Check chmod/chown settings."),
	regex(`failed to open stream`, "Missing File", SeverityHigh, 80,
		[]string{"filesystem", "missing"},
		"Verify file path and ensure plugin/theme files exist."),
	regex(`move_uploaded_file`, "Upload Failure", SeverityHigh, 80,
		[]string{"filesystem", "upload"},
		"Failed to move uploaded file. Check upload_tmp_dir or permissions."),
	regex(`There has been a critical error on this website`, "WordPress Critical Error", SeverityCritical, 100,
		[]string{"wp-core", "fatal"},
		"Enable WP_DEBUG to view detailed error logs."),
	regex(`nonce verification failed`, "Nonce Verification Failure", SeverityMedium, 70,
		[]string{"security", "nonce"},
		"Nonce may be expired or invalid. Refresh the page and retry."),
	regex(`Error establishing a database connection`, "Database Connection Failure", SeverityCritical, 100,
		[]string{"database", "wp-config"},
		"Verify DB credentials in wp-config.php and check MySQL service."),
	regex(`Plugin could not be activated because it triggered a fatal error`, "Plugin Activation Failure", SeverityHigh, 90,
		[]string{"plugin", "activation"},
		"Review stack trace to identify incompatible code or PHP version mismatch."),
	regex(`Required parameter .* follows optional parameter`, "PHP 8 Compatibility Issue", SeverityHigh, 85,
		[]string{"php8", "compatibility"},
		"Update plugin or fix function signature for PHP 8 compatibility."),
	regex(`rest_forbidden`, "REST Permission Denied", SeverityMedium, 70,
		[]string{"rest", "permission"},
		"Check REST permission_callback and current_user_can logic."),
	regex(`Block validation failed`, "Block Validation Failure", SeverityMedium, 75,
		[]string{"gutenberg", "block"},
		"Block markup may differ from saved content. Check custom block rendering."),
	regex(`wp_cron`, "WP Cron Failure", SeverityMedium, 60,
		[]string{"cron", "scheduler"},
		"Ensure WP-Cron is enabled or configure a real server cron job."),
	regex(`Table .* doesn't exist`, "Missing Database Table", SeverityCritical, 95,
		[]string{"database", "migration"},
		"Plugin may not have created required tables. Try reactivating it."),
	regex(`is_multisite`, "Multisite Misconfiguration", SeverityMedium, 65,
		[]string{"multisite", "network"},
		"Verify multisite constants in wp-config.php."),
	regex(`ImagickException`, "Imagick Processing Failure", SeverityMedium, 75,
		[]string{"imagick", "media"},
		"Ensure Imagick extension is installed and enabled."),
	regex(`Cannot modify header information - headers already sent`, "Headers Already Sent", SeverityMedium, 80,
		[]string{"output", "php"},
		"Remove whitespace before <?php or after closing ?> tags."),
	regex(`SSL certificate problem`, "SSL Certificate Error", SeverityHigh, 85,
		[]string{"ssl", "api"},
		"Verify SSL certificate chain and hosting configuration."),
}

// DefaultRules returns a copy of the built-in rule table.
// Callers may modify the returned slice freely.
func DefaultRules() []Rule {
	rules := make([]Rule, len(defaultRules))
	for i, r := range defaultRules {
		r.Tags = slices.Clone(r.Tags)
		rules[i] = r
	}
	return rules
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRulesFile reads additional rules from a YAML file of the form:
//
//	rules:
//	  - type: regex
//	    pattern: "WooCommerce.*payment"
//	    category: Payment Gateway Failure
//	    severity: high
//	    weight: 80
//	    tags: [woocommerce, payment]
//	    suggestion: Check the gateway credentials.
func LoadRulesFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	for _, r := range f.Rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	return f.Rules, nil
}
