package topics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sequentialIDs struct {
	mu   sync.Mutex
	next int
}

func (generator *sequentialIDs) NewID() (string, error) {
	generator.mu.Lock()
	defer generator.mu.Unlock()
	generator.next++
	return fmt.Sprintf("topic-%04d", generator.next), nil
}

// scriptedCodes replays codes in order, then falls back to sequential ones.
type scriptedCodes struct {
	mu     sync.Mutex
	codes  []ShareCode
	next   int
	issued int
}

func (generator *scriptedCodes) NewShareCode() (ShareCode, error) {
	generator.mu.Lock()
	defer generator.mu.Unlock()
	generator.issued++
	if generator.next < len(generator.codes) {
		code := generator.codes[generator.next]
		generator.next++
		return code, nil
	}
	return ShareCode(fmt.Sprintf("CODE%04d", generator.issued)), nil
}

type stuckCodes struct{}

func (stuckCodes) NewShareCode() (ShareCode, error) {
	return "STUCK000", nil
}

type failingCodes struct{}

func (failingCodes) NewShareCode() (ShareCode, error) {
	return "", errors.New("entropy unavailable")
}

// tickingClock advances one second per reading so creation order is observable.
type tickingClock struct {
	mu      sync.Mutex
	current time.Time
}

func newTickingClock() *tickingClock {
	return &tickingClock{current: time.Unix(1700000000, 0).UTC()}
}

func (clock *tickingClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.current = clock.current.Add(time.Second)
	return clock.current
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:topics_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	return newTestServiceWithCodes(t, &scriptedCodes{})
}

func newTestServiceWithCodes(t *testing.T, codes ShareCodeGenerator) (*Service, *gorm.DB) {
	t.Helper()

	db := openTestDatabase(t)
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      newTickingClock().Now,
		IDProvider: &sequentialIDs{},
		ShareCodes: codes,
	})
	if err != nil {
		t.Fatalf("failed to construct topics service: %v", err)
	}
	return service, db
}

func mustUsername(t *testing.T, value string) Username {
	t.Helper()
	name, err := NewUsername(value)
	if err != nil {
		t.Fatalf("unexpected username error: %v", err)
	}
	return name
}

func mustShareCode(t *testing.T, value string) ShareCode {
	t.Helper()
	code, err := ParseShareCode(value)
	if err != nil {
		t.Fatalf("unexpected share code error: %v", err)
	}
	return code
}

func mustCreateTopic(t *testing.T, service *Service, owner Username, input CreateTopicInput) TopicView {
	t.Helper()
	view, err := service.CreateTopic(context.Background(), owner, input)
	if err != nil {
		t.Fatalf("failed to create topic: %v", err)
	}
	return view
}

func codeOf(view TopicView) ShareCode {
	return ShareCode(view.ShareCode)
}

func publicPoll(title string, answers ...string) CreateTopicInput {
	return CreateTopicInput{Title: title, Answers: answers, IsPublic: true}
}

func privatePoll(title string, answers ...string) CreateTopicInput {
	return CreateTopicInput{Title: title, Answers: answers, IsPublic: false}
}

func expectErrorIs(t *testing.T, err error, target error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v, got nil", target)
	}
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
