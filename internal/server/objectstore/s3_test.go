package objectstore

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/scanvault/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCfg = Config{
	User:         "admin",
	Password:     "secretpassword",
	Bucket:       "scanvault",
	Region:       "us-east-1",
	BaseEndpoint: "http://127.0.0.1:9000/",
	PresignTTL:   5 * time.Minute,
}

// offlineAWSConfig skips shared config files so tests never depend on ~/.aws.
func offlineAWSConfig(t *testing.T) {
	t.Helper()
	orig := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = orig })

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			if err := fn(&lo); err != nil {
				return aws.Config{}, err
			}
		}
		return aws.Config{Region: lo.Region, Credentials: lo.Credentials}, nil
	}
}

func newTestStore(t *testing.T, cfg Config) *S3Store {
	t.Helper()
	offlineAWSConfig(t)
	s, err := New(context.Background(), cfg)
	require.NoError(t, err)
	return s
}

func TestNew_AppliesEndpointAndPathStyle(t *testing.T) {
	offlineAWSConfig(t)

	origNew := newS3ClientFromConfig
	t.Cleanup(func() { newS3ClientFromConfig = origNew })

	var opts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&opts)
		}
		return s3.NewFromConfig(cfg, optFns...)
	}

	_, err := New(context.Background(), testCfg)
	require.NoError(t, err)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://127.0.0.1:9000", *opts.BaseEndpoint)
	assert.True(t, opts.UsePathStyle)
}

func TestNew_LoadConfigError(t *testing.T) {
	orig := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = orig })
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}

	_, err := New(context.Background(), testCfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load-fail")
}

func TestPresignPut_SignsLocally(t *testing.T) {
	s := newTestStore(t, testCfg)

	raw, err := s.PresignPut(context.Background(), "users/u1/2025/03/01/abc.jpg", "image/jpeg")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", u.Host)
	assert.Equal(t, "/scanvault/users/u1/2025/03/01/abc.jpg", u.Path)
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
	assert.Equal(t, "300", u.Query().Get("X-Amz-Expires"))
}

func TestPresignPut_Error(t *testing.T) {
	s := newTestStore(t, testCfg)

	orig := presignPutObject
	t.Cleanup(func() { presignPutObject = orig })
	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("sign-fail")
	}

	_, err := s.PresignPut(context.Background(), "k", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sign-fail")
}

func TestPublicURL(t *testing.T) {
	s := newTestStore(t, testCfg)
	assert.Equal(t, "http://127.0.0.1:9000/scanvault/users/u1/a.jpg", s.PublicURL("users/u1/a.jpg"))

	cdn := testCfg
	cdn.PublicBaseURL = "https://cdn.example.com/"
	s = newTestStore(t, cdn)
	assert.Equal(t, "https://cdn.example.com/users/u1/a.jpg", s.PublicURL("users/u1/a.jpg"))
}

func TestGet(t *testing.T) {
	s := newTestStore(t, testCfg)

	orig := getObject
	t.Cleanup(func() { getObject = orig })

	t.Run("ok", func(t *testing.T) {
		getObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
			assert.Equal(t, "scanvault", aws.ToString(in.Bucket))
			assert.Equal(t, "k", aws.ToString(in.Key))
			return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("payload"))}, nil
		}
		rc, err := s.Get(context.Background(), "k")
		require.NoError(t, err)
		defer rc.Close()
		b, _ := io.ReadAll(rc)
		assert.Equal(t, "payload", string(b))
	})

	t.Run("missing", func(t *testing.T) {
		getObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
			return nil, &types.NoSuchKey{}
		}
		_, err := s.Get(context.Background(), "k")
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("network", func(t *testing.T) {
		getObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
			return nil, errors.New("connection reset")
		}
		_, err := s.Get(context.Background(), "k")
		assert.ErrorIs(t, err, common.ErrTransient)
	})
}

func TestPut(t *testing.T) {
	s := newTestStore(t, testCfg)

	orig := uploadObject
	t.Cleanup(func() { uploadObject = orig })

	var got *s3.PutObjectInput
	uploadObject = func(u *manager.Uploader, ctx context.Context, in *s3.PutObjectInput) error {
		got = in
		return nil
	}

	require.NoError(t, s.Put(context.Background(), "users/u1/n.md", "text/markdown", strings.NewReader("# Hi")))
	require.NotNil(t, got)
	assert.Equal(t, "users/u1/n.md", aws.ToString(got.Key))
	assert.Equal(t, "text/markdown", aws.ToString(got.ContentType))

	uploadObject = func(u *manager.Uploader, ctx context.Context, in *s3.PutObjectInput) error {
		return errors.New("503")
	}
	assert.ErrorIs(t, s.Put(context.Background(), "k", "text/plain", strings.NewReader("")), common.ErrTransient)
}
