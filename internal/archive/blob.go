package archive

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Blob is a single snapshot location.
type Blob interface {
	Put(ctx context.Context, data []byte) error
	Get(ctx context.Context) (io.ReadCloser, error)
	String() string
}

// S3Config configures the S3 client used for s3:// locations.
type S3Config struct {
	Region    string
	Endpoint  string // optional, for S3-compatible stores such as MinIO
	PathStyle bool
}

// Open resolves a location to a Blob. Locations starting with s3:// name a
// bucket and key; anything else is a local path.
func Open(ctx context.Context, location string, cfg S3Config) (Blob, error) {
	if !strings.HasPrefix(location, "s3://") {
		if location == "" {
			return nil, errors.New("archive location must not be empty")
		}
		return &FileBlob{Path: location}, nil
	}
	bucket, key, err := parseS3(location)
	if err != nil {
		return nil, err
	}
	client, err := NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &S3Blob{Client: client, Bucket: bucket, Key: key}, nil
}

func parseS3(location string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("parsing %s: %w", location, err)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 location %q needs a bucket and a key", location)
	}
	return bucket, key, nil
}

// NewS3Client builds an S3 client from the default credential chain.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// FileBlob stores a snapshot in a local file.
type FileBlob struct {
	Path string
}

func (b *FileBlob) String() string { return b.Path }

// Put writes data using the temp-file, fsync, rename pattern so readers
// never observe a partial snapshot.
func (b *FileBlob) Put(_ context.Context, data []byte) error {
	dir := filepath.Dir(b.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(step string, err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%s: %w", step, err)
	}

	w := bufio.NewWriter(tmp)
	if _, err := w.Write(data); err != nil {
		return fail("writing snapshot", err)
	}
	if err := w.Flush(); err != nil {
		return fail("flushing buffer", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("syncing temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, b.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func (b *FileBlob) Get(_ context.Context) (io.ReadCloser, error) {
	f, err := os.Open(b.Path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", b.Path, err)
	}
	return f, nil
}

// S3Blob stores a snapshot as one S3 object.
type S3Blob struct {
	Client *s3.Client
	Bucket string
	Key    string
}

func (b *S3Blob) String() string { return "s3://" + b.Bucket + "/" + b.Key }

func (b *S3Blob) Put(ctx context.Context, data []byte) error {
	_, err := b.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.Bucket),
		Key:         aws.String(b.Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", b, err)
	}
	return nil
}

func (b *S3Blob) Get(ctx context.Context) (io.ReadCloser, error) {
	out, err := b.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(b.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", b, err)
	}
	return out.Body, nil
}

// Save encodes snap and writes it to blob.
func Save(ctx context.Context, blob Blob, snap *Snapshot) error {
	var buf bytes.Buffer
	if err := Encode(&buf, snap); err != nil {
		return err
	}
	return blob.Put(ctx, buf.Bytes())
}

// Load reads and decodes the snapshot held by blob.
func Load(ctx context.Context, blob Blob) (*Snapshot, error) {
	rc, err := blob.Get(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return Decode(rc)
}
