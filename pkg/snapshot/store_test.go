package snapshot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 is an in-memory S3API.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    []*s3.PutObjectInput
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket := aws.ToString(in.Bucket) + "/"
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for k := range f.objects {
		key, ok := strings.CutPrefix(k, bucket)
		if ok && strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
		}
	}
	return out, nil
}

func stores(t *testing.T) map[string]Store {
	disk, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore() error = %v", err)
	}
	return map[string]Store{
		"memory": NewMemoryStore(),
		"disk":   disk,
		"s3":     NewS3Store(newFakeS3(), "bucket", "snapshots/"),
	}
}

func TestStores(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Get(ctx, "manager-1/a.json"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
			}

			for _, key := range []string{"manager-1/b.json", "manager-1/a.json", "manager-2/a.json"} {
				if err := store.Put(ctx, key, []byte(key)); err != nil {
					t.Fatalf("Put(%s) error = %v", key, err)
				}
			}
			if err := store.Put(ctx, "manager-1/a.json", []byte("v2")); err != nil {
				t.Fatalf("Put(overwrite) error = %v", err)
			}

			data, err := store.Get(ctx, "manager-1/a.json")
			if err != nil || string(data) != "v2" {
				t.Errorf("Get() = %q, %v; want v2", data, err)
			}

			keys, err := store.List(ctx, "manager-1/")
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if want := []string{"manager-1/a.json", "manager-1/b.json"}; !slices.Equal(keys, want) {
				t.Errorf("List() = %v, want %v", keys, want)
			}

			if err := store.Delete(ctx, "manager-1/a.json"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if err := store.Delete(ctx, "manager-1/a.json"); err != nil {
				t.Errorf("Delete(missing) error = %v", err)
			}
			if _, err := store.Get(ctx, "manager-1/a.json"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get(deleted) error = %v, want ErrNotFound", err)
			}

			if err := store.Put(ctx, "", nil); !errors.Is(err, ErrInvalidKey) {
				t.Errorf("Put(empty key) error = %v, want ErrInvalidKey", err)
			}
		})
	}
}

func TestDiskStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"../outside.json", "/abs.json"} {
		if err := store.Put(context.Background(), key, []byte("x")); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Put(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestS3StoreRequest(t *testing.T) {
	client := newFakeS3()
	store := NewS3Store(client, "bucket", "snapshots/")
	if err := store.Put(context.Background(), "manager-3/x.json", []byte("{}")); err != nil {
		t.Fatal(err)
	}

	in := client.puts[0]
	if aws.ToString(in.Bucket) != "bucket" || aws.ToString(in.Key) != "snapshots/manager-3/x.json" {
		t.Errorf("PutObject bucket/key = %s/%s", aws.ToString(in.Bucket), aws.ToString(in.Key))
	}
	if aws.ToString(in.ContentType) != "application/json" {
		t.Errorf("ContentType = %s", aws.ToString(in.ContentType))
	}
}

func TestNewS3Client(t *testing.T) {
	client := NewS3Client(S3Config{Endpoint: "http://localhost:9000"})
	opts := client.Options()
	if opts.Region != "us-east-1" {
		t.Errorf("Region = %q, want us-east-1", opts.Region)
	}
	if !opts.UsePathStyle || aws.ToString(opts.BaseEndpoint) != "http://localhost:9000" {
		t.Errorf("endpoint options = %v %v", opts.UsePathStyle, aws.ToString(opts.BaseEndpoint))
	}

	t.Setenv("AWS_ACCESS_KEY_ID", "id")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	creds, err := opts.Credentials.Retrieve(context.Background())
	if err != nil || creds.AccessKeyID != "id" || creds.SecretAccessKey != "secret" {
		t.Errorf("Retrieve() = %+v, %v", creds, err)
	}
}
