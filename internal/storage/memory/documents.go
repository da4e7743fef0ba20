package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/google/uuid"
)

type DocumentStore struct {
	mu   sync.Mutex
	docs map[string]*domain.Document
}

func NewDocumentStore(docs ...*domain.Document) *DocumentStore {
	s := &DocumentStore{docs: make(map[string]*domain.Document)}
	for _, d := range docs {
		c := *d
		s.docs[d.ID] = &c
	}
	return s
}

func (s *DocumentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	c := *d
	return &c, nil
}

// GetDefault returns nil without error when the user has no default document of that type
func (s *DocumentStore) GetDefault(ctx context.Context, userID string, docType domain.DocumentType) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs {
		if d.UserID == userID && d.Type == docType && d.IsDefault {
			c := *d
			return &c, nil
		}
	}
	return nil, nil
}

func (s *DocumentStore) IncrementUsage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	d.UsageCount++
	return nil
}

// JobBoard records mirrored postings and applications
type JobBoard struct {
	mu           sync.Mutex
	Postings     []domain.JobPosting
	Applications []domain.Application
}

func NewJobBoard() *JobBoard {
	return &JobBoard{}
}

func (b *JobBoard) CreateJob(ctx context.Context, posting *domain.JobPosting) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := *posting
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now()
	b.Postings = append(b.Postings, p)
	return p.ID, nil
}

func (b *JobBoard) Apply(ctx context.Context, app *domain.Application) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	a := *app
	a.ID = uuid.NewString()
	a.CreatedAt = time.Now()
	b.Applications = append(b.Applications, a)
	return nil
}

func (b *JobBoard) ApplicationCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Applications)
}
