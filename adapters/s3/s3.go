package s3

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader 上傳檔案並返回公開網址
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, content []byte) (string, error)
}

// Config 是連線到 S3 相容儲存空間所需的設定
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	Region          string
	Bucket          string
	PublicBaseURL   string
	KeyPrefix       string
}

type S3Operator struct {
	// client 是 S3 客戶端。
	client *s3.Client
	// bucket 是 S3 存儲桶的名稱。
	bucket string
	// keyPrefix 會加在所有物件key之前
	keyPrefix string
	// publicEndpoint 是 S3 存儲桶的公開 Endpoint。
	publicEndpoint *url.URL
}

// NewS3Operator 依照設定建立 S3 客戶端
func NewS3Operator(ctx context.Context, cfg Config) (*S3Operator, error) {
	const op = "NewS3Operator"
	publicEndpoint, err := url.Parse(cfg.PublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse public base URL, err=%w", op, err)
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	awsConfig, err := awsCfg.LoadDefaultConfig(
		ctx,
		awsCfg.WithBaseEndpoint(cfg.Endpoint),
		awsCfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		awsCfg.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to load AWS config, err=%w", op, err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return &S3Operator{
		client:         client,
		bucket:         cfg.Bucket,
		keyPrefix:      cfg.KeyPrefix,
		publicEndpoint: publicEndpoint,
	}, nil
}

// ObjectKey 返回實際寫入的物件key
func (s *S3Operator) ObjectKey(key string) string {
	return path.Join(s.keyPrefix, key)
}

// PublicURL 返回物件的公開網址
func (s *S3Operator) PublicURL(objectKey string) string {
	uri := *s.publicEndpoint
	uri.Path = path.Join("/", uri.Path, objectKey)
	return uri.String()
}

func (s *S3Operator) Upload(ctx context.Context, key, contentType string, content []byte) (string, error) {
	const op = "S3Operator.Upload"
	objectKey := s.ObjectKey(key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(content),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(content))),
	})
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to upload file to S3, err=%w", op, err)
	}
	return s.PublicURL(objectKey), nil
}
