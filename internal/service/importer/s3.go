package importer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ignite/construction-crm/internal/auth"
)

// S3API is the subset of the S3 client used to fetch import files.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ObjectRequest is an import whose rows come from a CSV object in S3.
type ObjectRequest struct {
	Bucket     string            `json:"bucket"`
	Key        string            `json:"key"`
	Mapping    map[string]string `json:"mapping,omitempty"`
	SegmentIDs []string          `json:"target_segment_ids,omitempty"`
}

// ImportFromS3 downloads a CSV object and imports its rows.
func (p *Pipeline) ImportFromS3(ctx context.Context, client S3API, req ObjectRequest) (*Result, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: s3 import is not configured", ErrInvalidInput)
	}
	if req.Bucket == "" || req.Key == "" {
		return nil, fmt.Errorf("%w: bucket and key are required", ErrInvalidInput)
	}
	if err := p.authz.IsPermitted(ctx, auth.ActionContactImport); err != nil {
		return nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(req.Bucket),
		Key:    aws.String(req.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", req.Bucket, req.Key, err)
	}
	defer out.Body.Close()

	rows, err := ParseCSV(out.Body, p.maxRows)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, Request{Rows: rows, Mapping: req.Mapping, SegmentIDs: req.SegmentIDs})
}
