// Package web holds the single-page chat UI served at "/".
package web

import _ "embed"

//go:embed index.html
var page []byte

// Page returns the embedded HTML document.
func Page() string {
	return string(page)
}
