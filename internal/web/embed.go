// Package web bundles the dashboard served at the root of the HTTP server.
package web

import (
	"bytes"
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
	"time"
)

//go:embed dist
var dist embed.FS

const indexFile = "index.html"

// Assets returns the embedded dashboard files rooted at dist/.
func Assets() fs.FS {
	sub, err := fs.Sub(dist, "dist")
	if err != nil {
		panic(err) // dist is compiled in
	}
	return sub
}

// Handler serves files from dir when set, otherwise from the embedded bundle.
func Handler(dir string) http.Handler {
	if dir != "" {
		return NewHandler(os.DirFS(dir))
	}
	return NewHandler(Assets())
}

// NewHandler serves files from fsys by path. Empty paths, directory paths and
// unknown paths all get index.html so client-side routes resolve.
func NewHandler(fsys fs.FS) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "" || strings.HasSuffix(r.URL.Path, "/") {
			name = indexFile
		}

		// Missing files and directories both fall back to the index.
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			name = indexFile
			data, err = fs.ReadFile(fsys, name)
			if err != nil {
				http.Error(w, "ui unavailable", http.StatusInternalServerError)
				return
			}
		}
		http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(data))
	})
}
