package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/mhmdtwsm/GradProject-sub000/internal/models"
	"github.com/mhmdtwsm/GradProject-sub000/internal/store"
)

// MockStore mocks store.Store with testify expectations.
type MockStore struct {
	mock.Mock
}

func NewMockStore() *MockStore {
	return &MockStore{}
}

func (m *MockStore) Create(ctx context.Context, v *models.Vault) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *MockStore) List(ctx context.Context) ([]models.VaultMetadata, error) {
	args := m.Called(ctx)
	if list := args.Get(0); list != nil {
		return list.([]models.VaultMetadata), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) Load(ctx context.Context, id string) (*models.Vault, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.Vault).Clone(), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) LoadSealed(ctx context.Context, id string) (models.SealedPayload, error) {
	args := m.Called(ctx, id)
	switch sealed := args.Get(0).(type) {
	case func(context.Context, string) models.SealedPayload:
		return sealed(ctx, id), args.Error(1)
	case models.SealedPayload:
		return sealed, args.Error(1)
	}
	return models.SealedPayload{}, args.Error(1)
}

func (m *MockStore) ReplaceSealed(ctx context.Context, id string, sealed models.SealedPayload) error {
	args := m.Called(ctx, id, sealed)
	return args.Error(0)
}

func (m *MockStore) Rename(ctx context.Context, id, name string) error {
	args := m.Called(ctx, id, name)
	return args.Error(0)
}

func (m *MockStore) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) Migrate(ctx context.Context, target store.Store) error {
	args := m.Called(ctx, target)
	return args.Error(0)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ store.Store = (*MockStore)(nil)
