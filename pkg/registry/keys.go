package registry

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Storage pools. Temp upload bytes, committed sources and processor
// artifacts live under separate prefixes so sweepers can reason per pool.
const (
	PoolUploads   = "uploads"
	PoolFiles     = "files"
	PoolArtifacts = "artifacts"
)

// BuildStorageKey returns a key of the form
// <workspaceID>/<projectID>/<pool>/<random><ext>. The random component makes
// keys collision-proof; the original file name never appears in the key.
func BuildStorageKey(workspaceID, projectID, pool, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return workspaceID + "/" + projectID + "/" + pool + "/" + uuid.NewString() + ext
}
