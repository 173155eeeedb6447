// Package s3 stores tree snapshots as objects in an S3 bucket.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/hashicorp/golang-lru/simplelru"
)

// S3Interface is the subset of the S3 client a Persist uses.
type S3Interface interface {
	DeleteObjectWithContext(ctx aws.Context, input *s3.DeleteObjectInput, opts ...request.Option) (*s3.DeleteObjectOutput, error)
	GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
}

// Persist implements the cmt.Persist interface for storing and loading
// snapshots from an S3 bucket.
type Persist struct {
	s3         S3Interface
	BucketName string
	Prefix     string
	// lru remembers names known to exist, so they are not uploaded again.
	lru *simplelru.LRU
}

// Load loads the bytes persisted in the named object.
func (p *Persist) Load(ctx context.Context, name string) ([]byte, error) {
	input := s3.GetObjectInput{
		Bucket: &p.BucketName,
		Key:    aws.String(p.Prefix + name),
	}
	output, err := p.s3.GetObjectWithContext(ctx, &input)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	defer output.Body.Close()
	b, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	p.lru.Add(name, nil)
	return b, nil
}

// Store persists the given bytes in an object of the given name, if it
// isn't known to exist already.
func (p *Persist) Store(ctx context.Context, name string, b []byte) error {
	if _, present := p.lru.Get(name); present {
		return nil
	}
	input := s3.PutObjectInput{
		Bucket: &p.BucketName,
		Key:    aws.String(p.Prefix + name),
		Body:   bytes.NewReader(b),
	}
	if _, err := p.s3.PutObjectWithContext(ctx, &input); err != nil {
		return fmt.Errorf("put %s: %w", name, err)
	}
	p.lru.Add(name, nil)
	return nil
}

// Delete removes the named object. Snapshots are immutable, so this is only
// for pruning versions nobody refers to any more.
func (p *Persist) Delete(ctx context.Context, name string) error {
	input := s3.DeleteObjectInput{
		Bucket: &p.BucketName,
		Key:    aws.String(p.Prefix + name),
	}
	if _, err := p.s3.DeleteObjectWithContext(ctx, &input); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	p.lru.Remove(name)
	return nil
}

// NewPersist returns a Persist that loads and stores snapshots as
// objects with the given S3 client, bucket name and key prefix.
func NewPersist(client S3Interface, bucketName, prefix string) *Persist {
	lru, err := simplelru.NewLRU(1000, nil)
	if err != nil {
		panic(err)
	}
	return &Persist{client, bucketName, prefix, lru}
}
