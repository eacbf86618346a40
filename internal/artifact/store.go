package artifact

import (
	"net/http"
	"os"
	"path"
	"strings"
)

// Handler serves the files of dir read-only. Directory listings and dot
// files are not exposed.
func Handler(dir string) http.Handler {
	fs := http.FileServer(noListingFS{http.Dir(dir)})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, seg := range strings.Split(path.Clean("/"+r.URL.Path), "/") {
			if strings.HasPrefix(seg, ".") {
				http.NotFound(w, r)
				return
			}
		}
		fs.ServeHTTP(w, r)
	})
}

// URL joins an artifact store base URL and an entry name.
func URL(base, entry string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(entry, "/")
}

type noListingFS struct {
	fs http.FileSystem
}

func (n noListingFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.IsDir() {
		f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}
