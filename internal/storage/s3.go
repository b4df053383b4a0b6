package storage

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/pbkdf2"
)

const (
	gcmMagic        = "GCM3NCR0"
	pbkdf2Iter      = 100000
	saltSize        = 16
	nonceSize       = 12
	encryptedSuffix = ".enc"
)

// Options configures the S3 archive.
type Options struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // S3-compatible endpoint, e.g. MinIO
	AccessKeyID     string
	SecretAccessKey string
	Passphrase      string
	Log             zerolog.Logger
}

// Artifact is one file produced by a run.
type Artifact struct {
	Name        string
	Data        []byte
	ContentType string
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type bucketHeader interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Archive copies run artifacts to a bucket, optionally encrypted.
type S3Archive struct {
	up         uploader
	head       bucketHeader
	bucket     string
	prefix     string
	passphrase string
	log        zerolog.Logger
}

// NewS3Archive creates an archive backed by the default AWS credential chain,
// or by static keys when both are given.
func NewS3Archive(ctx context.Context, opts Options) (*S3Archive, error) {
	var loadOpts []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awscfg.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	a := newArchive(manager.NewUploader(cli), opts)
	a.head = cli
	return a, nil
}

func newArchive(up uploader, opts Options) *S3Archive {
	return &S3Archive{
		up:         up,
		bucket:     opts.Bucket,
		prefix:     opts.Prefix,
		passphrase: opts.Passphrase,
		log:        opts.Log,
	}
}

// CheckBucket reports whether the bucket exists and is reachable with the
// configured credentials.
func (a *S3Archive) CheckBucket(ctx context.Context) error {
	if a.head == nil {
		return fmt.Errorf("bucket check unavailable")
	}
	_, err := a.head.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	return err
}

// Key returns the object key for an artifact of a run.
func (a *S3Archive) Key(runID, name string) string {
	k := path.Join(a.prefix, runID, name)
	if a.passphrase != "" {
		k += encryptedSuffix
	}
	return k
}

// ArchiveRun uploads every artifact and returns their s3:// locations.
func (a *S3Archive) ArchiveRun(ctx context.Context, runID string, files []Artifact) ([]string, error) {
	var locations []string
	for _, f := range files {
		body := f.Data
		meta := map[string]string{"run-id": runID, "name": f.Name}
		if a.passphrase != "" {
			enc, err := encryptGCM(f.Data, a.passphrase)
			if err != nil {
				return locations, fmt.Errorf("failed to encrypt %s: %w", f.Name, err)
			}
			body = enc
			meta["encrypted"] = "true"
			meta["encryption-format"] = gcmMagic
		}
		key := a.Key(runID, f.Name)
		contentType := f.ContentType
		if a.passphrase != "" || contentType == "" {
			contentType = "application/octet-stream"
		}
		_, err := a.up.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String(contentType),
			Metadata:    meta,
		})
		if err != nil {
			return locations, fmt.Errorf("failed to upload %s: %w", key, err)
		}
		loc := fmt.Sprintf("s3://%s/%s", a.bucket, key)
		a.log.Info().Str("location", loc).Int("bytes", len(body)).Bool("encrypted", a.passphrase != "").Msg("archived artifact")
		locations = append(locations, loc)
	}
	return locations, nil
}

// encryptGCM produces magic(8) + salt(16) + nonce(12) + ciphertext + tag(16)
func encryptGCM(plaintext []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(gcmMagic)+saltSize+nonceSize+len(plaintext)+gcm.Overhead())
	out = append(out, gcmMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// DecryptGCM reverses encryptGCM; used to read archived artifacts back.
func DecryptGCM(data []byte, passphrase string) ([]byte, error) {
	if len(data) < len(gcmMagic)+saltSize+nonceSize+16 {
		return nil, fmt.Errorf("GCM data too short: %d bytes", len(data))
	}
	if string(data[:len(gcmMagic)]) != gcmMagic {
		return nil, fmt.Errorf("unknown encryption format %q", data[:len(gcmMagic)])
	}
	salt := data[8:24]
	nonce := data[24:36]
	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, data[36:], nil)
	if err != nil {
		return nil, fmt.Errorf("GCM decryption failed: %w", err)
	}
	return plaintext, nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iter, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
