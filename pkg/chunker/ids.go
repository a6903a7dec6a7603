package chunker

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/xhad/tutor/internal/models"
)

var (
	chunkNamespace  = uuid.NewSHA1(uuid.NameSpaceURL, []byte("tutor:chunk"))
	sourceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("tutor:source"))
)

// ChunkID derives a stable UUID from the course, the source and the rune
// offset where the chunk body starts. The course is part of the name so the
// same source ingested into two courses never shares entries.
func ChunkID(courseID models.CourseID, sourceID string, bodyStart int) string {
	name := string(courseID) + "\x00" + sourceID + "\x00" + strconv.Itoa(bodyStart)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

// SourceID derives a stable source id from an origin reference such as a
// file path or URL.
func SourceID(originRef string) string {
	return uuid.NewSHA1(sourceNamespace, []byte(originRef)).String()
}
