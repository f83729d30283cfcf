package web

import (
	"embed"
)

// staticFiles holds the booth page: HTML, CSS and JS.
//
//go:embed static/*
var staticFiles embed.FS
