package covers

import (
	"strings"

	"github.com/google/uuid"
)

// SongCoverPrefix is the file name prefix used for song cover images.
const SongCoverPrefix = "song_cover"

// NameFor derives the storage file name for an entity's asset. The same inputs
// always yield the same name, so it is used both to write and to resolve a file.
func NameFor(entityID uuid.UUID, prefix, originalFilename string) string {
	name := prefix + "_" + entityID.String()
	if ext, ok := Extension(originalFilename); ok {
		name += "." + ext
	}
	return name
}

// Extension returns the lower-cased text after the last dot of filename.
// Names without a dot, whose only dot is the leading one (".gitignore"), or
// that end in a dot have no extension. Any directory part is ignored.
func Extension(filename string) (string, bool) {
	if sep := strings.LastIndexAny(filename, `/\`); sep >= 0 {
		filename = filename[sep+1:]
	}
	idx := strings.LastIndex(filename, ".")
	if idx <= 0 || idx == len(filename)-1 {
		return "", false
	}
	return strings.ToLower(filename[idx+1:]), true
}
