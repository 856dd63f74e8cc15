package parser

import (
	"bytes"
	"path/filepath"
	"regexp"
	"strings"
)

// sniffLimit bounds how much of a file content sniffing looks at.
const sniffLimit = 4096

var extIndex = func() map[string]Language {
	m := make(map[string]Language)
	for lang, exts := range FileExtensions {
		for _, ext := range exts {
			m[ext] = lang
		}
	}
	return m
}()

// LanguageForExtension returns the language mapped to ext, or LangUnknown.
func LanguageForExtension(ext string) Language {
	return extIndex[strings.ToLower(ext)]
}

// shebangs maps interpreter names found on a #! line to languages.
var shebangs = []struct {
	interp string
	lang   Language
}{
	{"python", LangPython},
	{"node", LangJavaScript},
	{"deno", LangTypeScript},
	{"ts-node", LangTypeScript},
	{"ruby", LangRuby},
	{"perl", LangPerl},
	{"php", LangPHP},
	{"lua", LangLua},
	{"bash", LangShell},
	{"zsh", LangShell},
	{"sh", LangShell},
}

// keywordSniffers are tried in order; the first pattern found wins.
var keywordSniffers = []struct {
	re   *regexp.Regexp
	lang Language
}{
	{regexp.MustCompile(`(?m)^<\?php`), LangPHP},
	{regexp.MustCompile(`(?m)^package\s+[a-z_][a-z0-9_]*\s*$`), LangGo},
	{regexp.MustCompile(`(?m)^package\s+[\w.]+;\s*$`), LangJava},
	{regexp.MustCompile(`(?m)^\s*public\s+(final\s+|abstract\s+)?class\s+\w+`), LangJava},
	{regexp.MustCompile(`(?m)^#include\s*[<"]`), LangC},
	{regexp.MustCompile(`(?m)^\s*(pub\s+)?fn\s+\w+\s*\(`), LangRust},
	{regexp.MustCompile(`(?m)^\s*(def|class)\s+\w+.*:\s*$`), LangPython},
	{regexp.MustCompile(`(?m)^\s*from\s+[\w.]+\s+import\s+`), LangPython},
	{regexp.MustCompile(`(?m)^\s*(import|export)\s+.*\s+from\s+['"]`), LangJavaScript},
	{regexp.MustCompile(`require\(\s*['"][^'"]+['"]\s*\)|module\.exports\s*=`), LangJavaScript},
	{regexp.MustCompile(`(?m)^\s*def\s+\w+.*$\n(?s:.*)^\s*end\s*$`), LangRuby},
}

// Detect returns the language of the file at path. The extension table is
// consulted first; content sniffing (shebang, then characteristic keywords)
// is the last resort. LangUnknown means detection failed.
func Detect(path string, content []byte) Language {
	if lang := LanguageForExtension(filepath.Ext(path)); lang != LangUnknown {
		return lang
	}
	return Sniff(content)
}

// Sniff guesses a language from file content alone.
func Sniff(content []byte) Language {
	head := content
	if len(head) > sniffLimit {
		head = head[:sniffLimit]
	}
	if bytes.HasPrefix(head, []byte("#!")) {
		line := head
		if i := bytes.IndexByte(line, '\n'); i >= 0 {
			line = line[:i]
		}
		if lang := shebangLanguage(string(line)); lang != LangUnknown {
			return lang
		}
	}
	for _, s := range keywordSniffers {
		if s.re.Match(head) {
			return s.lang
		}
	}
	return LangUnknown
}

// shebangLanguage maps a #! line to a language. "/usr/bin/env python3" and
// "/bin/bash -e" both resolve by the interpreter's base name.
func shebangLanguage(line string) Language {
	fields := strings.Fields(strings.TrimPrefix(line, "#!"))
	if len(fields) == 0 {
		return LangUnknown
	}
	interp := filepath.Base(fields[0])
	if interp == "env" {
		for _, f := range fields[1:] {
			if !strings.HasPrefix(f, "-") {
				interp = f
				break
			}
		}
	}
	for _, s := range shebangs {
		if interp == s.interp || strings.HasPrefix(interp, s.interp) && isVersionSuffix(interp[len(s.interp):]) {
			return s.lang
		}
	}
	return LangUnknown
}

func isVersionSuffix(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}
