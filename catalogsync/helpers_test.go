package catalogsync

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/mmdatafocus/catalogsync_backend/config"
	"github.com/mmdatafocus/catalogsync_backend/models"
	"github.com/mmdatafocus/catalogsync_backend/reconcile"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, models.Migrate(db))
	return db
}

// memCatalog is an in-memory external catalog keyed by full name.
type memCatalog struct {
	mu        sync.Mutex
	prefix    string
	seq       int
	now       time.Time
	resources map[string]reconcile.Resource
	calls     []string
}

func newMemCatalog(prefix string) *memCatalog {
	return &memCatalog{
		prefix:    prefix,
		now:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		resources: map[string]reconcile.Resource{},
	}
}

func (m *memCatalog) tick() *time.Time {
	m.now = m.now.Add(time.Minute)
	t := m.now
	return &t
}

func (m *memCatalog) put(parentKey string, name string, comment string) reconcile.Resource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	res := reconcile.Resource{
		FullName:   reconcile.JoinFullName(parentKey, name),
		ExternalID: fmt.Sprintf("%s-%d", m.prefix, m.seq),
		Name:       name,
		ParentKey:  parentKey,
		Comment:    &comment,
		CreatedAt:  m.tick(),
	}
	m.resources[res.FullName] = res
	return res
}

func (m *memCatalog) Get(_ context.Context, fullName string) (*reconcile.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.resources[fullName]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", fullName, reconcile.ErrResourceNotFound)
	}
	return &res, nil
}

func (m *memCatalog) List(_ context.Context, parentKey string) ([]reconcile.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []reconcile.Resource
	for _, res := range m.resources {
		if res.ParentKey == parentKey {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (m *memCatalog) Create(_ context.Context, spec reconcile.ResourceSpec) (*reconcile.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	res := reconcile.Resource{
		FullName:        reconcile.JoinFullName(spec.ParentKey, spec.Name),
		ExternalID:      fmt.Sprintf("%s-%d", m.prefix, m.seq),
		Name:            spec.Name,
		ParentKey:       spec.ParentKey,
		Comment:         spec.Comment,
		StorageLocation: spec.StorageLocation,
		Properties:      spec.Properties,
		CreatedAt:       m.tick(),
	}
	m.resources[res.FullName] = res
	m.calls = append(m.calls, "create "+res.FullName)
	return &res, nil
}

func (m *memCatalog) Update(_ context.Context, fullName string, spec reconcile.ResourceSpec) (*reconcile.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.resources[fullName]
	if !ok {
		return nil, fmt.Errorf("update %s: %w", fullName, reconcile.ErrResourceNotFound)
	}
	res.Comment = spec.Comment
	res.Properties = spec.Properties
	res.UpdatedAt = m.tick()
	m.resources[fullName] = res
	m.calls = append(m.calls, "update "+fullName)
	return &res, nil
}

func (m *memCatalog) Delete(_ context.Context, fullName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resources[fullName]; !ok {
		return fmt.Errorf("delete %s: %w", fullName, reconcile.ErrResourceNotFound)
	}
	delete(m.resources, fullName)
	m.calls = append(m.calls, "delete "+fullName)
	return nil
}

func (m *memCatalog) touch(fullName string, comment string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := m.resources[fullName]
	res.Comment = &comment
	res.UpdatedAt = m.tick()
	m.resources[fullName] = res
}

func (m *memCatalog) callsWithPrefix(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func createConnection(t *testing.T, db *gorm.DB, owner string, endpoint string, policy string) *models.CatalogConnection {
	t.Helper()
	conn := &models.CatalogConnection{
		Provider:       models.IntegrationProviderUnityCatalog,
		Owner:          owner,
		Status:         models.IntegrationStatusConnected,
		ServerEndpoint: endpoint,
		CatalogName:    "unity",
		Policy:         policy,
		SettingsJSON:   EncodeSettings(DefaultSettings()),
	}
	require.NoError(t, db.Create(conn).Error)
	return conn
}

// useTestRedis points the global Redis and lock clients at an in-memory server.
func useTestRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	config.UseRedis(client)
	t.Cleanup(func() {
		config.UseRedis(nil)
		_ = client.Close()
	})
	return mr
}
