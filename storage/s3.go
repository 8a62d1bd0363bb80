package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/ruteri/content-service-backend/config"
	"github.com/ruteri/content-service-backend/interfaces"
)

// collectionMarker is the object that marks a collection prefix as created.
const collectionMarker = ".collection"

// S3Provider stores content in Amazon S3 or a compatible service. Collections
// are key prefixes; versions are objects at {prefix}/{c}/{i}/{major}_{minor}/{name}.
type S3Provider struct {
	tag      string
	bucket   string
	prefix   string
	client   *s3.S3
	uploader *s3manager.Uploader
	log      *slog.Logger
}

var _ interfaces.StorageProvider = (*S3Provider)(nil)

func NewS3Provider(log *slog.Logger) *S3Provider {
	return &S3Provider{log: log}
}

// Bind requires bucket. Without accessKey and secretKey the default AWS
// credential chain is used.
func (p *S3Provider) Bind(ctx context.Context, binding interfaces.StorageBinding, _ interfaces.PathCachePartition, client *http.Client) error {
	bucket, err := config.RequiredString(binding, "bucket")
	if err != nil {
		return err
	}
	region, err := config.OptionalString(binding, "region", "us-east-1")
	if err != nil {
		return err
	}
	endpoint, err := config.OptionalString(binding, "endpoint", "")
	if err != nil {
		return err
	}
	prefix, err := config.OptionalString(binding, "prefix", "")
	if err != nil {
		return err
	}
	accessKey, err := config.OptionalString(binding, "accessKey", "")
	if err != nil {
		return err
	}
	secretKey, err := config.OptionalString(binding, "secretKey", "")
	if err != nil {
		return err
	}
	if (accessKey == "") != (secretKey == "") {
		return fmt.Errorf("%w: binding %q needs both accessKey and secretKey", interfaces.ErrConfiguration, binding.Tag)
	}
	pathStyle, err := config.OptionalBool(binding, "forcePathStyle", false)
	if err != nil {
		return err
	}

	cfg := aws.Config{
		Region:           aws.String(region),
		S3ForcePathStyle: aws.Bool(pathStyle),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
	}
	if client != nil {
		cfg.HTTPClient = client
	}
	if accessKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return fmt.Errorf("%w: failed to create AWS session: %v", interfaces.ErrConfiguration, err)
	}

	p.tag = binding.Tag
	p.bucket = bucket
	p.prefix = strings.Trim(prefix, "/")
	p.client = s3.New(sess)
	p.uploader = s3manager.NewUploaderWithClient(p.client)
	return nil
}

func (p *S3Provider) Type() string { return "s3" }

func (p *S3Provider) Tag() string { return p.tag }

// objectKey turns an address into a bucket key below the configured prefix.
func (p *S3Provider) objectKey(address string) string {
	return strings.TrimPrefix(path.Join("/", p.prefix, address), "/")
}

func isS3NotFound(err error) bool {
	var reqErr awserr.RequestFailure
	return errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound
}

func s3StatusError(message string, err error) error {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) {
		switch reqErr.StatusCode() {
		case http.StatusNotFound:
			return interfaces.NewStorageError(http.StatusNotFound, message, errors.Join(interfaces.ErrNotFound, err))
		case http.StatusForbidden, http.StatusUnauthorized:
			return interfaces.NewStorageError(reqErr.StatusCode(), message, err)
		}
	}
	return interfaces.NewStorageError(http.StatusBadGateway, message, err)
}

// CreateCollection writes the collection marker. An existing marker resolves
// to the same prefix.
func (p *S3Provider) CreateCollection(ctx context.Context, c *interfaces.Collection) (*interfaces.StorageOperationResult, error) {
	start := time.Now()
	dir := CollectionPath("", c.ID)
	key := p.objectKey(dir + "/" + collectionMarker)

	_, err := p.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
		p.log.Debug("Collection marker already present", slog.String("bucket", p.bucket), slog.String("key", key))
	case isS3NotFound(err):
		_, err = p.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(nil),
		})
		if err != nil {
			return nil, s3StatusError("failed to write collection marker", err)
		}
	default:
		return nil, s3StatusError("failed to probe collection marker", err)
	}

	p.log.Debug("Created collection prefix",
		slog.String("bucket", p.bucket),
		slog.String("key", key),
		slog.Duration("duration", time.Since(start)))

	props := baseProperties(p.Type())
	props[PropPath] = interfaces.StringValue(p.objectKey(dir))
	return okResult(props), nil
}

func (p *S3Provider) CreateItemVersion(ctx context.Context, c *interfaces.Collection, item *interfaces.Item, v *interfaces.ItemVersion, content io.Reader) (*interfaces.StorageOperationResult, error) {
	start := time.Now()
	key := p.objectKey(VersionPath("", c.ID, item.ID, v, true))
	mimeType := v.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	counter := &countingReader{r: content}
	_, err := p.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        counter,
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		p.log.Error("Failed to upload object to S3",
			slog.String("bucket", p.bucket),
			slog.String("key", key),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, s3StatusError("failed to upload object", err)
	}

	p.log.Debug("Stored item version in S3",
		slog.String("bucket", p.bucket),
		slog.String("key", key),
		slog.Int64("size", counter.n),
		slog.Duration("duration", time.Since(start)))

	props := baseProperties(p.Type())
	props[PropPath] = interfaces.StringValue(key)
	props[PropSize] = interfaces.NumberValue(float64(counter.n))
	props[PropContentType] = interfaces.StringValue(mimeType)
	res := okResult(props)
	res.Size = counter.n
	return res, nil
}

func (p *S3Provider) ReadItemVersion(ctx context.Context, c *interfaces.Collection, item *interfaces.Item, v *interfaces.ItemVersion) (*interfaces.StorageOperationResult, error) {
	key := p.objectKey(VersionPath("", c.ID, item.ID, v, true))
	out, err := p.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s3StatusError(fmt.Sprintf("failed to get object %s", key), err)
	}

	props := map[string]interfaces.PropertyValue{PropPath: interfaces.StringValue(key)}
	if out.ContentType != nil {
		props[PropContentType] = interfaces.StringValue(*out.ContentType)
	}
	res := okResult(props)
	res.Stream = out.Body
	res.Size = aws.Int64Value(out.ContentLength)
	return res, nil
}

// DeleteItem deletes every object below the item prefix.
func (p *S3Provider) DeleteItem(ctx context.Context, c *interfaces.Collection, item *interfaces.Item) (*interfaces.StorageOperationResult, error) {
	prefix := p.objectKey(ItemPath("", c.ID, item.ID)) + "/"

	var keys []string
	err := p.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		return nil, s3StatusError("failed to list item objects", err)
	}

	for _, key := range keys {
		_, err := p.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, s3StatusError(fmt.Sprintf("failed to delete object %s", key), err)
		}
	}

	p.log.Debug("Deleted item objects",
		slog.String("bucket", p.bucket),
		slog.String("prefix", prefix),
		slog.Int("count", len(keys)))
	return okResult(nil), nil
}
