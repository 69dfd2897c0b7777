package export

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/NERVsystems/overpassqb/pkg/convert"
)

// AzureConfig configures an AzureSink. ConnectionString wins over
// AccountName/AccountKey.
type AzureConfig struct {
	Container        string `mapstructure:"container"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Prefix           string `mapstructure:"prefix"`
}

// AzureSink uploads exports to a blob container.
type AzureSink struct {
	client    *azblob.Client
	container string
	prefix    string
}

// NewAzureSink creates an Azure Blob sink.
func NewAzureSink(cfg AzureConfig) (*AzureSink, error) {
	if cfg.Container == "" {
		return nil, errors.New("azure container is required")
	}

	var (
		client *azblob.Client
		err    error
	)
	switch {
	case cfg.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	case cfg.AccountName != "" && cfg.AccountKey != "":
		var cred *azblob.SharedKeyCredential
		cred, err = azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("azure credentials: %w", err)
		}
		url := "https://" + cfg.AccountName + ".blob.core.windows.net/"
		client, err = azblob.NewClientWithSharedKeyCredential(url, cred, nil)
	default:
		return nil, errors.New("azure connection string or account name and key are required")
	}
	if err != nil {
		return nil, fmt.Errorf("creating azure client: %w", err)
	}

	return &AzureSink{client: client, container: cfg.Container, prefix: cfg.Prefix}, nil
}

// Type implements Sink.
func (s *AzureSink) Type() string { return TypeAzure }

// Put implements Sink. The returned location is the blob URL.
func (s *AzureSink) Put(ctx context.Context, f *convert.File) (string, error) {
	name := objectKey(s.prefix, f.Name)
	contentType := f.MIMEType
	_, err := s.client.UploadBuffer(ctx, s.container, name, f.Content, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s to azure: %w", name, err)
	}
	return strings.TrimSuffix(s.client.URL(), "/") + "/" + s.container + "/" + name, nil
}
