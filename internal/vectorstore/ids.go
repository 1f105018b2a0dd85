package vectorstore

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
)

// ChunkID derives the deterministic chunk id for the index-th chunk of
// documentID: hex(md5(document_id + "_chunk_" + chunk_index)). Re-running
// ingestion over the same document produces identical ids, which is what
// makes BatchUpsert idempotent and lets the pipeline detect an
// already-stored document without re-fetching it.
func ChunkID(documentID string, chunkIndex int) string {
	sum := md5.Sum([]byte(documentID + "_chunk_" + strconv.Itoa(chunkIndex)))
	return hex.EncodeToString(sum[:])
}
