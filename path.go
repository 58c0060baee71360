package tftp

import (
	"errors"
	"path/filepath"
	"strings"
)

var errPathEscape = errors.New("path escapes served directory")

// resolve joins a client-supplied filename with the server root. The
// request is refused if the cleaned result escapes the root; clients
// have no business above the served directory, whatever the
// combination of "..", absolute paths, or separators used to get
// there.
func (srv *Server) resolve(name string) (string, error) {
	root := srv.Root
	if root == "" {
		root = "."
	}
	joined := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, joined)
	if err != nil {
		return "", errPathEscape
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errPathEscape
	}
	return joined, nil
}
