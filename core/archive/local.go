// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/relabs-tech/iotf/core/codec"
)

// LocalConfiguration contains the configuration for the local filesystem archive
type LocalConfiguration struct {
	BasePath string
}

// Local archives messages as files below a base directory
type Local struct {
	baseFolder string
}

// NewLocal returns a new Local archive. The base directory is created if needed.
func NewLocal(baseFolder string) (*Local, error) {
	if baseFolder == "" {
		return nil, fmt.Errorf("BasePath must not be empty")
	}
	if err := os.MkdirAll(baseFolder, 0o755); err != nil {
		return nil, err
	}
	return &Local{baseFolder: baseFolder}, nil
}

// Put writes the payload of msg to a new file and returns its key
func (l *Local) Put(ctx context.Context, msg codec.RawMessage) (string, error) {
	if strings.Contains(msg.Topic, "..") {
		return "", fmt.Errorf(".. not allowed in topic %q", msg.Topic)
	}
	key := Key("", msg.Topic, msg.ReceivedAt)
	path := filepath.Join(l.baseFolder, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, msg.Payload, 0o644); err != nil {
		return "", err
	}
	return key, nil
}

// Get returns the payload stored under key
func (l *Local) Get(key string) ([]byte, error) {
	if strings.Contains(key, "..") {
		return nil, fmt.Errorf(".. not allowed in key %q", key)
	}
	return os.ReadFile(filepath.Join(l.baseFolder, filepath.FromSlash(key)))
}

// List returns the keys below prefix in lexical order
func (l *Local) List(prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(l.baseFolder, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(l.baseFolder, path)
		if err != nil {
			return err
		}
		if key := filepath.ToSlash(rel); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	return keys, err
}
