package domain

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type bucketFile struct {
	Buckets []AgingBucket `yaml:"buckets"`
}

// ParseBucketsYAML decodes and validates a bucket table.
//
//	buckets:
//	  - name: fresh
//	    minDays: 0
//	    maxDays: 2
//	    urgency: low
func ParseBucketsYAML(data []byte) ([]AgingBucket, error) {
	var file bucketFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode aging buckets: %w", err)
	}
	if err := ValidateBuckets(file.Buckets); err != nil {
		return nil, err
	}
	return file.Buckets, nil
}

// LoadBuckets reads the table from path, or returns DefaultBuckets when path is empty.
func LoadBuckets(path string) ([]AgingBucket, error) {
	if path == "" {
		return DefaultBuckets(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read aging buckets %s: %w", path, err)
	}
	return ParseBucketsYAML(data)
}
