// Package kss provides key-prefixed blob storage for firmware binaries,
// outside of the relational gateway store. There are currently two possible
// backends: a local file system and AWS S3.
package kss

// Driver defines the interface for the KSS service
type Driver interface {
	UploadData(key string, data []byte, contentType string) error
	Delete(key string) error
	DeleteAllWithPrefix(prefix string) error
	ListAllWithPrefix(prefix string) ([]string, error)
}

// DriverType represents the different types of KSS drivers
type DriverType string

// DriverTypeLocal is the local filesystem implementation of the KSS service
const DriverTypeLocal DriverType = "Local"

// DriverTypeAWSS3 is the AWS S3 implementation of the KSS service
const DriverTypeAWSS3 DriverType = "AWSS3"

// None is used when there is no KSS implementation
const None DriverType = ""

// Configuration contains the configuration for the KSS service
type Configuration struct {
	DriverType         DriverType
	LocalConfiguration *LocalConfiguration
	S3Configuration    *S3Configuration
}

// LocalConfiguration contains the configuration for the local filesystem KSS service
type LocalConfiguration struct {
	BasePath string
}

// S3Configuration contains the configuration for the AWS S3 KSS service
type S3Configuration struct {
	AWSBucketName string
	AWSRegion     string
	AccessID      string
	AccessKey     string
	KeyPrefix     string
}
