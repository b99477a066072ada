package storage

import (
	"io"
	"path"
	"strings"
)

// BlobStore keeps uploaded answer files. Callers persist only the key.
type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
	Delete(key string) error
}

// AnswerKey is the key under which a file_upload answer is stored.
func AnswerKey(attemptID, questionID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	return path.Join(AnswerPrefix(attemptID, questionID), name)
}

// AnswerPrefix is the directory every file of one answer lives under.
func AnswerPrefix(attemptID, questionID string) string {
	return path.Join("attempts", attemptID, questionID) + "/"
}
