package main

import (
	"context"
	"strings"

	"github.com/rutexd/minidav/internal/vfs"
)

// seedSampleContent populates a fresh in-memory namespace with a few
// files so the server has something to browse out of the box.
func seedSampleContent(ctx context.Context, fs vfs.FS) error {
	members, err := fs.Members(ctx, "/")
	if err != nil || len(members) > 0 {
		return err
	}

	samples := map[string]string{
		"/welcome.txt":       "Welcome! This server speaks WebDAV Class 1 and 2.\n",
		"/docs/readme.txt":   "Mount this share with any WebDAV client.\n",
		"/docs/examples.txt": "Try PROPFIND with Depth: 1 on /docs.\n",
	}
	for path, content := range samples {
		if err := fs.WriteStream(ctx, path, strings.NewReader(content), nil); err != nil {
			return err
		}
	}
	return nil
}
