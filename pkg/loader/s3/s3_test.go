package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/loader"
)

type fakeBucket struct {
	objects map[string]string
	gets    int
}

func (f *fakeBucket) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gets++
	if aws.ToString(in.Bucket) != "books" {
		return nil, errors.New("no such bucket")
	}
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("no such key")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestBookLoader(t *testing.T) {
	bucket := &fakeBucket{objects: map[string]string{"b1/book.txt": "Chapter one"}}
	l := NewBookLoaderWithClient("books", bucket)

	f := loader.BookFile{BookID: "b1", Path: "b1/book.txt", Loader: l}
	for range 2 {
		text, err := f.GetText(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if text != "Chapter one" {
			t.Fatalf("expected object body, got %q", text)
		}
	}
	if bucket.gets != 1 {
		t.Fatalf("expected one GetObject call, got %d", bucket.gets)
	}

	missing := loader.BookFile{BookID: "b1", Path: "b1/missing.txt", Loader: l}
	if _, err := missing.GetText(context.Background()); err == nil || !strings.Contains(err.Error(), "s3://books/b1/missing.txt") {
		t.Fatalf("expected wrapped s3 error, got %v", err)
	}
}
