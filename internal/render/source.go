package render

import "regexp"

var (
	// import React, { useState } from 'react'; and bare import 'x';
	staticImport = regexp.MustCompile(`(?m)^[ \t]*import\s+(?:[\w$*{}\s,]+\s+from\s+)?['"][^'"\n]+['"][ \t]*;?[ \t]*$`)

	exportDefaultAnonFunc = regexp.MustCompile(`(?m)^([ \t]*)export\s+default\s+function\s*\(`)
	exportDefaultArrow    = regexp.MustCompile(`(?m)^([ \t]*)export\s+default\s+(\([^)]*\)|[\w$]+)\s*=>`)
	exportDefaultDecl     = regexp.MustCompile(`(?m)^([ \t]*)export\s+default\s+(function|class)\b`)
	exportDefaultName     = regexp.MustCompile(`(?m)^[ \t]*export\s+default\s+[\w$]+[ \t]*;?[ \t]*$`)
	exportDecl            = regexp.MustCompile(`(?m)^([ \t]*)export\s+(const|let|var|function|class)\b`)

	componentDecl = regexp.MustCompile(`\b(?:function|class)\s+(?:InviteComponent|App|Component)\b|\b(?:const|let|var)\s+(?:InviteComponent|App|Component)\s*=`)
)

// prepareSource rewrites module syntax into plain script the frame bootstrap
// can evaluate: static imports are dropped (the capabilities are injected)
// and export keywords are removed. An anonymous default export is named
// InviteComponent.
func prepareSource(code string) string {
	src := staticImport.ReplaceAllString(code, "")
	src = exportDefaultAnonFunc.ReplaceAllString(src, "${1}function InviteComponent(")
	src = exportDefaultArrow.ReplaceAllString(src, "${1}const InviteComponent = ${2} =>")
	src = exportDefaultDecl.ReplaceAllString(src, "${1}${2}")
	src = exportDefaultName.ReplaceAllString(src, "")
	src = exportDecl.ReplaceAllString(src, "${1}${2}")
	return src
}

// declaresComponent reports whether src declares one of the names the
// bootstrap looks up.
func declaresComponent(src string) bool {
	return componentDecl.MatchString(src)
}
