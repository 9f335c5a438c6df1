package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	return &s3.PutObjectOutput{}, args.Error(0)
}

func (m *mockS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func TestS3Store_Save(t *testing.T) {
	client := &mockS3{}
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Bucket == "permits-bucket" && *in.Key == "permits/1.pdf" && *in.ContentType == "application/pdf"
	})).Return(nil)

	s := NewS3StoreWithClient(client, "permits-bucket")
	require.NoError(t, s.Save(context.Background(), "permits/1.pdf", []byte("pdf"), "application/pdf"))
	client.AssertExpectations(t)
}

func TestS3Store_Load(t *testing.T) {
	client := &mockS3{}
	client.On("GetObject", mock.Anything, mock.Anything).
		Return(&s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte("pdf")))}, nil)

	s := NewS3StoreWithClient(client, "permits-bucket")
	b, err := s.Load(context.Background(), "permits/1.pdf")
	require.NoError(t, err)
	assert.Equal(t, "pdf", string(b))
}

func TestS3Store_LoadMissing(t *testing.T) {
	client := &mockS3{}
	client.On("GetObject", mock.Anything, mock.Anything).Return(nil, &types.NoSuchKey{})

	s := NewS3StoreWithClient(client, "permits-bucket")
	_, err := s.Load(context.Background(), "permits/1.pdf")
	assert.ErrorIs(t, err, ErrNotExist)
}
