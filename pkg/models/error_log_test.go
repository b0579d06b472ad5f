package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_StableForSameInputs(t *testing.T) {
	a := Fingerprint("Undefined variable: $foo", "/a.php", 10)
	b := Fingerprint("Undefined variable: $foo", "/a.php", 10)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64, "sha256 hex digest")
}

func TestFingerprint_DiffersOnAnyComponent(t *testing.T) {
	base := Fingerprint("msg", "/a.php", 10)

	assert.NotEqual(t, base, Fingerprint("msg2", "/a.php", 10))
	assert.NotEqual(t, base, Fingerprint("msg", "/b.php", 10))
	assert.NotEqual(t, base, Fingerprint("msg", "/a.php", 11))
}

func TestFingerprint_SeparatorPreventsShiftedCollisions(t *testing.T) {
	assert.NotEqual(t,
		Fingerprint("a|b", "c", 1),
		Fingerprint("a", "b|c", 1),
	)
}

func TestValidErrorStatus(t *testing.T) {
	assert.True(t, ValidErrorStatus("open"))
	assert.True(t, ValidErrorStatus("resolved"))
	assert.True(t, ValidErrorStatus("ignored"))
	assert.False(t, ValidErrorStatus("closed"))
	assert.False(t, ValidErrorStatus(""))
}

func TestSeverityBucket(t *testing.T) {
	tests := []struct {
		errorType string
		message   string
		want      string
	}{
		{"PHP Fatal Error", "anything", "Fatal"},
		{"User Error", "anything", "Fatal"},
		{"Warning", "anything", "Warning"},
		{"User Deprecated", "anything", "Deprecated"},
		{"Notice", "Allowed memory size exhausted", "Memory"},
		{"Notice", "Undefined index: foo", "Notice"},
	}

	for _, tt := range tests {
		t.Run(tt.errorType+"/"+tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, SeverityBucket(tt.errorType, tt.message))
		})
	}
}

func TestLevelForErrno(t *testing.T) {
	assert.Equal(t, LevelWarnings, LevelForErrno(ErrnoWarning))
	assert.Equal(t, LevelWarnings, LevelForErrno(ErrnoUserWarning))
	assert.Equal(t, LevelNotices, LevelForErrno(ErrnoUserNotice))
	assert.Equal(t, LevelDeprecated, LevelForErrno(ErrnoUserDeprecated))
	assert.Equal(t, LevelStrict, LevelForErrno(ErrnoStrict))
	assert.Equal(t, LevelFatal, LevelForErrno(ErrnoRecoverableError))
	assert.Equal(t, LevelParse, LevelForErrno(ErrnoParse))
	assert.Equal(t, LevelNotices, LevelForErrno(99999), "unknown errno defaults to notices")
}

func TestTypeNameForErrno(t *testing.T) {
	assert.Equal(t, "Catchable Fatal Error", TypeNameForErrno(ErrnoRecoverableError))
	assert.Equal(t, "PHP Error", TypeNameForErrno(3))
}

func TestParseLevel(t *testing.T) {
	l, ok := ParseLevel(" Warnings ")
	assert.True(t, ok)
	assert.Equal(t, LevelWarnings, l)

	_, ok = ParseLevel("verbose")
	assert.False(t, ok)
}

func TestCodeSnippet_IsEmpty(t *testing.T) {
	var nilSnippet *CodeSnippet
	assert.True(t, nilSnippet.IsEmpty())
	assert.True(t, (&CodeSnippet{Target: 3}).IsEmpty())
	assert.False(t, (&CodeSnippet{Target: 3, Truncated: true}).IsEmpty())
	assert.False(t, (&CodeSnippet{Lines: map[int]string{3: "x"}, Target: 3}).IsEmpty())
}

func TestErrorLogFilters_Normalize(t *testing.T) {
	assert.Equal(t, ErrorLogFilters{Limit: DefaultListLimit}, ErrorLogFilters{}.Normalize())
	assert.Equal(t, ErrorLogFilters{Limit: MaxListLimit, Offset: 0}, ErrorLogFilters{Limit: 10000, Offset: -3}.Normalize())
	assert.Equal(t, ErrorLogFilters{Status: "open", Limit: 20, Offset: 40}, ErrorLogFilters{Status: "open", Limit: 20, Offset: 40}.Normalize())
}

func TestLevelForType(t *testing.T) {
	assert.Equal(t, LevelParse, LevelForType("PHP Parse Error"))
	assert.Equal(t, LevelExceptions, LevelForType("Uncaught Exception"))
	assert.Equal(t, LevelFatal, LevelForType("panic (Fatal)"))
	assert.Equal(t, LevelWarnings, LevelForType("User Warning"))
	assert.Equal(t, LevelDeprecated, LevelForType("Deprecated"))
	assert.Equal(t, LevelStrict, LevelForType("Strict Standards"))
	assert.Equal(t, LevelNotices, LevelForType("Notice"))
	assert.Equal(t, LevelNotices, LevelForType(""))
}

func TestErrorLog_RequestFlags(t *testing.T) {
	log := &ErrorLog{}
	isAdmin, isREST := log.RequestFlags()
	assert.False(t, isAdmin)
	assert.False(t, isREST)

	log.SetRequestFlags(true, false)
	isAdmin, isREST = log.RequestFlags()
	assert.True(t, isAdmin)
	assert.False(t, isREST)
}
