package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectByExtension(t *testing.T) {
	tests := map[string]Language{
		"main.go":         LangGo,
		"pkg/util.PY":     LangPython,
		"src/app.tsx":     LangTSX,
		"src/app.ts":      LangTypeScript,
		"lib/index.mjs":   LangJavaScript,
		"Main.java":       LangJava,
		"native/lib.h":    LangC,
		"scripts/run.sh":  LangShell,
		"styles/site.css": LangCSS,
	}
	for path, want := range tests {
		assert.Equal(t, want, Detect(path, nil), path)
	}
}

func TestDetectExtensionWinsOverContent(t *testing.T) {
	assert.Equal(t, LangGo, Detect("x.go", []byte("#!/usr/bin/env python3\n")))
}

func TestSniffShebang(t *testing.T) {
	tests := map[string]Language{
		"#!/usr/bin/env python3\nprint(1)\n": LangPython,
		"#!/usr/bin/python2.7\n":             LangPython,
		"#!/usr/bin/env -S node --harmony\n": LangJavaScript,
		"#!/bin/bash -e\necho hi\n":          LangShell,
		"#!/bin/sh\n":                        LangShell,
		"#!/usr/bin/env ruby\n":              LangRuby,
	}
	for src, want := range tests {
		assert.Equal(t, want, Sniff([]byte(src)), src)
	}
}

func TestSniffKeywords(t *testing.T) {
	tests := map[string]Language{
		"package main\n\nfunc main() {}\n":            LangGo,
		"package com.example;\n\npublic class A {}\n": LangJava,
		"<?php\necho 'x';\n":                          LangPHP,
		"#include <stdio.h>\nint main() {}\n":         LangC,
		"from os import path\n":                       LangPython,
		"import x from './x';\n":                      LangJavaScript,
		"const fs = require('fs');\n":                 LangJavaScript,
		"pub fn main() {\n}\n":                        LangRust,
	}
	for src, want := range tests {
		assert.Equal(t, want, Sniff([]byte(src)), src)
	}
}

func TestSniffUnknown(t *testing.T) {
	assert.Equal(t, LangUnknown, Sniff(nil))
	assert.Equal(t, LangUnknown, Sniff([]byte("just some prose\nwith two lines\n")))
	assert.Equal(t, LangUnknown, Detect("README", []byte("#!/usr/bin/env whatever\n")))
}
