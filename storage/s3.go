package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"

	"github.com/Jseb0/Clinical-Data-Explorer/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// SnapshotStore archiviert rohe CSV-Exporte (gzip) in einem S3-Bucket,
// bevor sie verarbeitet werden.
type SnapshotStore struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

// NewSnapshotStore erstellt den S3-Client für das Snapshot-Archiv.
func NewSnapshotStore(cfg *config.Config) (*SnapshotStore, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.SnapshotS3URL,
				SigningRegion:     cfg.SnapshotS3Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.SnapshotS3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.SnapshotS3Key, cfg.SnapshotS3Secret, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}

	return &SnapshotStore{
		client:  s3.NewFromConfig(awsCfg),
		bucket:  cfg.SnapshotS3Bucket,
		baseURL: cfg.SnapshotS3URL,
	}, nil
}

// ArchiveSnapshot komprimiert den Export und lädt ihn unter snapshots/<name>
// hoch. Gibt den Link auf das Objekt zurück.
func (st *SnapshotStore) ArchiveSnapshot(ctx context.Context, name string, data []byte) (string, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}

	key := "snapshots/" + name
	_, err := st.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &st.bucket,
		Key:    &key,
		Body:   bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s", st.baseURL, st.bucket, key), nil
}
