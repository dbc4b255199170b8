package kss

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/farmgate-io/farmgate/core/logger"
)

// LocalFilesystem is the implementation of the Driver interface on the local
// file system. It is meant for development setups and tests.
type LocalFilesystem struct {
	baseFolder string
}

// NewLocalFilesystem returns a new LocalFilesystem rooted at baseFolder.
// The folder gets created if it does not exist yet.
func NewLocalFilesystem(kssConfig LocalConfiguration) (*LocalFilesystem, error) {
	if kssConfig.BasePath == "" {
		return nil, fmt.Errorf("BasePath must not be empty")
	}
	if err := os.MkdirAll(kssConfig.BasePath, 0700); err != nil {
		return nil, err
	}
	logger.Default().Debugln("KSS local filesystem enabled")
	return &LocalFilesystem{baseFolder: kssConfig.BasePath}, nil
}

func (f LocalFilesystem) path(key string) (string, error) {
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("'..' is not allowed in a key")
	}
	return filepath.Join(f.baseFolder, filepath.FromSlash(key)), nil
}

// UploadData stores data under key. The content type is ignored, the local
// filesystem keeps no object metadata.
func (f LocalFilesystem) UploadData(key string, data []byte, contentType string) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Delete deletes the key object
func (f LocalFilesystem) Delete(key string) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}
	return os.RemoveAll(path)
}

// DeleteAllWithPrefix deletes all keys starting with prefix
func (f LocalFilesystem) DeleteAllWithPrefix(prefix string) error {
	keys, err := f.ListAllWithPrefix(prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := f.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// ListAllWithPrefix lists all keys with prefix
func (f LocalFilesystem) ListAllWithPrefix(prefix string) ([]string, error) {
	if strings.Contains(prefix, "..") {
		return nil, fmt.Errorf("'..' is not allowed in a key")
	}
	var keys []string
	err := filepath.WalkDir(f.baseFolder, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(f.baseFolder, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	return keys, err
}
