package blob

import (
	"io"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Put(key string, data []byte, contentType string) error {
	args := m.Called(key, data, contentType)
	return args.Error(0)
}

func (m *MockStore) PresignGet(key string, ttl time.Duration) (string, error) {
	args := m.Called(key, ttl)
	return args.String(0), args.Error(1)
}

func (m *MockStore) Open(key string) (io.ReadCloser, error) {
	args := m.Called(key)
	if rc, ok := args.Get(0).(io.ReadCloser); ok {
		return rc, args.Error(1)
	}
	return nil, args.Error(1)
}
