// Package objectfs adapts an S3-compatible object store into the vfs
// contract. Files map to objects, collections to zero-byte marker
// objects with a trailing-slash key, and dead properties live in the
// SQLite store because object metadata cannot hold arbitrary
// qualified names.
package objectfs

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/rutexd/minidav/internal/props"
	"github.com/rutexd/minidav/internal/vfs"
	"github.com/rutexd/minidav/internal/webdav/davpath"
	"github.com/rutexd/minidav/internal/weberr"
)

const collectionContentType = "application/x-directory"

// Options configures the object storage connection.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// ObjectFS is the object-storage VFS adapter.
type ObjectFS struct {
	client *minio.Client
	bucket string
	props  *props.Store
}

// New connects to the object store and ensures the bucket exists.
func New(ctx context.Context, opts Options, propStore *props.Store) (*ObjectFS, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, weberr.Wrap(weberr.Internal, "create object storage client", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, weberr.Wrap(weberr.Internal, "check bucket", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, weberr.Wrap(weberr.Internal, "create bucket", err)
		}
	}

	return &ObjectFS{client: client, bucket: opts.Bucket, props: propStore}, nil
}

// fileKey maps a normalized path to its object key.
func fileKey(p string) string {
	return strings.TrimPrefix(p, "/")
}

// collectionKey maps a normalized path to its marker key.
func collectionKey(p string) string {
	return fileKey(p) + "/"
}

func quoteETag(etag string) string {
	if strings.HasPrefix(etag, `"`) {
		return etag
	}
	return `"` + etag + `"`
}

func (o *ObjectFS) Exists(ctx context.Context, path string) (bool, error) {
	info, err := o.Stat(ctx, path)
	if err != nil {
		if weberr.KindOf(err) == weberr.NotFound {
			return false, nil
		}
		return false, err
	}
	return info.Kind != vfs.KindAbsent, nil
}

func (o *ObjectFS) Stat(ctx context.Context, path string) (vfs.Info, error) {
	if davpath.IsRoot(path) {
		return vfs.Info{Path: path, Kind: vfs.KindCollection, DisplayName: "/"}, nil
	}
	_, name := davpath.Split(path)

	if st, err := o.client.StatObject(ctx, o.bucket, fileKey(path), minio.StatObjectOptions{}); err == nil {
		return vfs.Info{
			Path:         path,
			Kind:         vfs.KindFile,
			Size:         st.Size,
			ETag:         quoteETag(st.ETag),
			Created:      st.LastModified,
			LastModified: st.LastModified,
			DisplayName:  name,
		}, nil
	}

	if st, err := o.client.StatObject(ctx, o.bucket, collectionKey(path), minio.StatObjectOptions{}); err == nil {
		return vfs.Info{
			Path:         path,
			Kind:         vfs.KindCollection,
			ETag:         quoteETag(st.ETag),
			Created:      st.LastModified,
			LastModified: st.LastModified,
			DisplayName:  name,
		}, nil
	}

	// A prefix with content but no marker still reads as a collection.
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	for obj := range o.client.ListObjects(listCtx, o.bucket, minio.ListObjectsOptions{
		Prefix: collectionKey(path),
	}) {
		if obj.Err != nil {
			break
		}
		return vfs.Info{
			Path:         path,
			Kind:         vfs.KindCollection,
			Created:      obj.LastModified,
			LastModified: obj.LastModified,
			DisplayName:  name,
		}, nil
	}

	return vfs.Info{}, weberr.New(weberr.NotFound, path)
}

// ensureParents writes marker objects for every missing ancestor.
func (o *ObjectFS) ensureParents(ctx context.Context, path string) error {
	parent, _ := davpath.Split(path)
	for !davpath.IsRoot(parent) {
		if _, err := o.client.StatObject(ctx, o.bucket, collectionKey(parent), minio.StatObjectOptions{}); err == nil {
			break
		}
		if err := o.putMarker(ctx, parent); err != nil {
			return err
		}
		parent, _ = davpath.Split(parent)
	}
	return nil
}

func (o *ObjectFS) putMarker(ctx context.Context, path string) error {
	_, err := o.client.PutObject(ctx, o.bucket, collectionKey(path),
		strings.NewReader(""), 0, minio.PutObjectOptions{ContentType: collectionContentType})
	if err != nil {
		return weberr.Wrap(weberr.Internal, "create collection marker", err)
	}
	return nil
}

func (o *ObjectFS) Create(ctx context.Context, path string, kind vfs.Kind) error {
	if err := o.ensureParents(ctx, path); err != nil {
		return err
	}
	if kind == vfs.KindCollection {
		return o.putMarker(ctx, path)
	}
	_, err := o.client.PutObject(ctx, o.bucket, fileKey(path),
		bytes.NewReader(nil), 0, minio.PutObjectOptions{})
	if err != nil {
		return weberr.Wrap(weberr.Internal, "create object", err)
	}
	return nil
}

// subtreeKeys lists every object key belonging to path: the file key,
// the marker key, and everything below.
func (o *ObjectFS) subtreeKeys(ctx context.Context, path string) ([]string, error) {
	var keys []string
	if _, err := o.client.StatObject(ctx, o.bucket, fileKey(path), minio.StatObjectOptions{}); err == nil {
		keys = append(keys, fileKey(path))
	}
	for obj := range o.client.ListObjects(ctx, o.bucket, minio.ListObjectsOptions{
		Prefix:    collectionKey(path),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, weberr.Wrap(weberr.Internal, "list subtree", obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (o *ObjectFS) Delete(ctx context.Context, path string) error {
	if davpath.IsRoot(path) {
		return weberr.New(weberr.Forbidden, "cannot delete root")
	}
	keys, err := o.subtreeKeys(ctx, path)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return weberr.New(weberr.NotFound, path)
	}
	for _, key := range keys {
		if err := o.client.RemoveObject(ctx, o.bucket, key, minio.RemoveObjectOptions{}); err != nil {
			return weberr.Wrap(weberr.Internal, "remove object", err)
		}
	}
	if o.props != nil {
		return o.props.DeleteTree(ctx, path)
	}
	return nil
}

// rewriteKey translates a source-subtree key into the destination.
func rewriteKey(key, src, dst string) string {
	srcFile := fileKey(src)
	dstFile := fileKey(dst)
	if key == srcFile {
		return dstFile
	}
	return dstFile + strings.TrimPrefix(key, srcFile)
}

func (o *ObjectFS) Copy(ctx context.Context, from, to string) error {
	keys, err := o.subtreeKeys(ctx, from)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return weberr.New(weberr.NotFound, from)
	}
	if err := o.ensureParents(ctx, to); err != nil {
		return err
	}
	for _, key := range keys {
		_, err := o.client.CopyObject(ctx,
			minio.CopyDestOptions{Bucket: o.bucket, Object: rewriteKey(key, from, to)},
			minio.CopySrcOptions{Bucket: o.bucket, Object: key})
		if err != nil {
			return weberr.Wrap(weberr.Internal, "copy object", err)
		}
	}
	if o.props != nil {
		return o.props.CopyTree(ctx, from, to)
	}
	return nil
}

// Move is copy-then-delete; object stores expose no atomic rename.
func (o *ObjectFS) Move(ctx context.Context, from, to string) error {
	if err := o.Copy(ctx, from, to); err != nil {
		return err
	}
	if err := o.Delete(ctx, from); err != nil {
		return err
	}
	return nil
}

func (o *ObjectFS) Members(ctx context.Context, path string) ([]vfs.Info, error) {
	info, err := o.Stat(ctx, path)
	if err != nil {
		return nil, err
	}
	if info.Kind != vfs.KindCollection {
		return nil, weberr.New(weberr.Conflict, path+" is not a collection")
	}

	prefix := ""
	if !davpath.IsRoot(path) {
		prefix = collectionKey(path)
	}
	var out []vfs.Info
	for obj := range o.client.ListObjects(ctx, o.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, weberr.Wrap(weberr.Internal, "list members", obj.Err)
		}
		rest := strings.TrimPrefix(obj.Key, prefix)
		if rest == "" {
			continue // the collection's own marker
		}
		childPath := "/" + strings.TrimSuffix(obj.Key, "/")
		_, name := davpath.Split(childPath)
		kind := vfs.KindFile
		if strings.HasSuffix(obj.Key, "/") {
			kind = vfs.KindCollection
		}
		out = append(out, vfs.Info{
			Path:         childPath,
			Kind:         kind,
			Size:         obj.Size,
			ETag:         quoteETag(obj.ETag),
			Created:      obj.LastModified,
			LastModified: obj.LastModified,
			DisplayName:  name,
		})
	}
	return out, nil
}

func (o *ObjectFS) ReadStream(ctx context.Context, path string, rng *vfs.Range) (io.ReadCloser, error) {
	st, err := o.Stat(ctx, path)
	if err != nil {
		return nil, err
	}
	if st.Kind != vfs.KindFile {
		return nil, weberr.New(weberr.Conflict, path+" is not a file")
	}
	opts := minio.GetObjectOptions{}
	if rng != nil {
		if rng.Start < 0 || rng.End >= st.Size || rng.Start > rng.End {
			return nil, weberr.New(weberr.RangeNotSatisfiable, "range outside object")
		}
		if err := opts.SetRange(rng.Start, rng.End); err != nil {
			return nil, weberr.Wrap(weberr.RangeNotSatisfiable, "set range", err)
		}
	}
	obj, err := o.client.GetObject(ctx, o.bucket, fileKey(path), opts)
	if err != nil {
		return nil, weberr.Wrap(weberr.Internal, "get object", err)
	}
	return obj, nil
}

func (o *ObjectFS) WriteStream(ctx context.Context, path string, data io.Reader, rng *vfs.Range) error {
	if err := o.ensureParents(ctx, path); err != nil {
		return err
	}

	if rng == nil {
		_, err := o.client.PutObject(ctx, o.bucket, fileKey(path), data, -1,
			minio.PutObjectOptions{})
		if err != nil {
			return weberr.Wrap(weberr.Internal, "put object", err)
		}
		return nil
	}

	// Random-access write: splice into the current content. Object
	// stores rewrite whole objects, so the content is staged in
	// memory; partial PUT bodies are bounded in practice.
	var current []byte
	if obj, err := o.client.GetObject(ctx, o.bucket, fileKey(path), minio.GetObjectOptions{}); err == nil {
		current, _ = io.ReadAll(obj)
		obj.Close()
	}
	incoming, err := io.ReadAll(data)
	if err != nil {
		return weberr.Wrap(weberr.Internal, "read request body", err)
	}

	total := rng.Total
	if total < int64(len(current)) {
		total = int64(len(current))
	}
	if need := rng.Start + int64(len(incoming)); need > total {
		total = need
	}
	buf := make([]byte, total)
	copy(buf, current)
	copy(buf[rng.Start:], incoming)

	_, err = o.client.PutObject(ctx, o.bucket, fileKey(path),
		bytes.NewReader(buf), int64(len(buf)), minio.PutObjectOptions{})
	if err != nil {
		return weberr.Wrap(weberr.Internal, "put spliced object", err)
	}
	return nil
}

func (o *ObjectFS) GetProperty(ctx context.Context, path, namespace, name string) (string, bool, error) {
	if o.props == nil {
		return "", false, nil
	}
	return o.props.Get(ctx, path, namespace, name)
}

func (o *ObjectFS) SetProperty(ctx context.Context, path, namespace, name, value string) error {
	if o.props == nil {
		return weberr.New(weberr.Internal, "no property store configured")
	}
	return o.props.Set(ctx, path, namespace, name, value)
}

func (o *ObjectFS) RemoveProperty(ctx context.Context, path, namespace, name string) error {
	if o.props == nil {
		return nil
	}
	return o.props.Remove(ctx, path, namespace, name)
}

func (o *ObjectFS) ListProperties(ctx context.Context, path string) (map[vfs.PropKey]string, error) {
	if o.props == nil {
		return map[vfs.PropKey]string{}, nil
	}
	return o.props.List(ctx, path)
}

// statically assert the contract.
var _ vfs.FS = (*ObjectFS)(nil)
