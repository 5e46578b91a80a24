package storage

import (
	"log"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	awssession "github.com/aws/aws-sdk-go/aws/session"

	"github.com/carenod/timecourse-for-raspi/internal/config"
)

// NewFromConfig selects the archive backend. Local is the default: a
// USB stick in the field beats cloud credentials on most installs.
func NewFromConfig(cfg *config.Config) Provider {
	if cfg.Archive.Provider == "s3" {
		s3Config := &aws.Config{
			Credentials:      credentials.NewStaticCredentials(cfg.Archive.KeyID, cfg.Archive.AppKey, ""),
			Endpoint:         aws.String(cfg.Archive.Endpoint),
			Region:           aws.String(cfg.Archive.Region),
			S3ForcePathStyle: aws.Bool(true),
		}
		sess := awssession.Must(awssession.NewSession(s3Config))
		log.Printf("☁️ Archive target: s3 bucket %s", cfg.Archive.Bucket)
		return NewS3Provider(sess, cfg.Archive.Bucket)
	}

	log.Printf("💾 Archive target: %s", cfg.Archive.LocalPath)
	return NewLocalProvider(cfg.Archive.LocalPath)
}
