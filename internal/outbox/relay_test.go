package outbox

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"resume-search/internal/storage/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []string
	failWith  error
}

func (f *fakePublisher) PublishMessage(_ context.Context, exchange, routingKey string, body []byte, persistent bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.published = append(f.published, exchange+"|"+routingKey+"|"+string(body))
	return nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("RESUME_SEARCH_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("未设置 RESUME_SEARCH_TEST_MYSQL_DSN，跳过 outbox 集成测试")
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Skipf("无法连接MySQL: %v", err)
	}
	require.NoError(t, db.AutoMigrate(&models.OutboxMessage{}))
	require.NoError(t, db.Exec("DELETE FROM outbox_messages").Error)
	return db
}

func seed(t *testing.T, db *gorm.DB, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, db.Create(&models.OutboxMessage{
			AggregateID:      "00000000-0000-0000-0000-00000000000" + string(rune('0'+i)),
			EventType:        "resume.processed",
			Payload:          datatypes.JSON(`{"resume_id":1}`),
			TargetExchange:   "resume.events.exchange",
			TargetRoutingKey: "resume.processed",
			Status:           models.OutboxStatusPending,
		}).Error)
	}
}

func TestMessageRelay_FlushPublishesAll(t *testing.T) {
	db := newTestDB(t)
	seed(t, db, 5)

	pub := &fakePublisher{}
	relay := NewMessageRelay(db, pub, WithBatchSize(2))

	sent, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, sent)
	assert.Len(t, pub.published, 5)
	assert.Equal(t, `resume.events.exchange|resume.processed|{"resume_id":1}`, pub.published[0])

	var pending int64
	require.NoError(t, db.Model(&models.OutboxMessage{}).Where("status = ?", models.OutboxStatusPending).Count(&pending).Error)
	assert.Zero(t, pending)
}

func TestMessageRelay_FailureMarksAfterMaxRetries(t *testing.T) {
	db := newTestDB(t)
	seed(t, db, 1)

	pub := &fakePublisher{failWith: errors.New("broker down")}
	relay := NewMessageRelay(db, pub)

	for i := 0; i < maxRetryCount; i++ {
		sent, err := relay.Flush(context.Background())
		require.NoError(t, err)
		assert.Zero(t, sent)
	}

	var msg models.OutboxMessage
	require.NoError(t, db.First(&msg).Error)
	assert.Equal(t, models.OutboxStatusFailed, msg.Status)
	assert.Equal(t, maxRetryCount, msg.RetryCount)
	assert.Equal(t, "broker down", msg.ErrorMessage)
}

func TestMessageRelay_StartStop(t *testing.T) {
	relay := NewMessageRelay(nil, &fakePublisher{}, WithPollingInterval(time.Hour))
	relay.Start(context.Background())
	relay.Stop()
	relay.Stop()
}
