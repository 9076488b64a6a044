package core

import (
	"context"
	"sync"
	"time"
)

// Recado is a short message left from one person to another.
type Recado struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// RecadoInput carries every content field; used by create and full replace.
type RecadoInput struct {
	Text string `yaml:"text"`
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// RecadoPatch carries only the fields a partial update touches.
type RecadoPatch struct {
	Text *string
	From *string
	To   *string
}

// RecadoPage is one offset/limit slice of the collection.
type RecadoPage struct {
	Data   []Recado `json:"data"`
	Total  int      `json:"total"`
	Offset int      `json:"offset"`
	Limit  int      `json:"limit"`
}

// RecadoRepository defines storage operations for recados.
// Lookups on an unknown id return ErrRecadoNotFound.
type RecadoRepository interface {
	Create(ctx context.Context, in RecadoInput) (*Recado, error)
	Get(ctx context.Context, id int64) (*Recado, error)
	List(ctx context.Context, offset, limit int) (RecadoPage, error)
	UpdatePartial(ctx context.Context, id int64, patch RecadoPatch) (*Recado, error)
	ReplaceFull(ctx context.Context, id int64, in RecadoInput) (*Recado, error)
	MarkRead(ctx context.Context, id int64) (*Recado, error)
	Remove(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

// MemoryRecadoRepository keeps recados in insertion order in process memory.
type MemoryRecadoRepository struct {
	mu     sync.Mutex
	items  []Recado
	nextID int64
	now    func() time.Time
}

func NewMemoryRecadoRepository() *MemoryRecadoRepository {
	return &MemoryRecadoRepository{nextID: 1, now: time.Now}
}

func (r *MemoryRecadoRepository) Create(_ context.Context, in RecadoInput) (*Recado, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := Recado{
		ID:        r.nextID,
		Text:      in.Text,
		From:      in.From,
		To:        in.To,
		Read:      false,
		CreatedAt: r.now(),
	}
	r.nextID++
	r.items = append(r.items, rec)
	return &rec, nil
}

func (r *MemoryRecadoRepository) Get(_ context.Context, id int64) (*Recado, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil, ErrRecadoNotFound
	}
	rec := r.items[i]
	return &rec, nil
}

// List clamps negative offset/limit to zero. An offset past the end yields an
// empty page with the real total.
func (r *MemoryRecadoRepository) List(_ context.Context, offset, limit int) (RecadoPage, error) {
	offset = max(offset, 0)
	limit = max(limit, 0)

	r.mu.Lock()
	defer r.mu.Unlock()

	total := len(r.items)
	start := min(offset, total)
	end := min(start+limit, total)
	data := make([]Recado, end-start)
	copy(data, r.items[start:end])
	return RecadoPage{Data: data, Total: total, Offset: offset, Limit: limit}, nil
}

func (r *MemoryRecadoRepository) UpdatePartial(_ context.Context, id int64, patch RecadoPatch) (*Recado, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil, ErrRecadoNotFound
	}
	rec := &r.items[i]
	if patch.Text != nil {
		rec.Text = *patch.Text
	}
	if patch.From != nil {
		rec.From = *patch.From
	}
	if patch.To != nil {
		rec.To = *patch.To
	}
	rec.Read = false
	rec.CreatedAt = r.now()
	out := *rec
	return &out, nil
}

func (r *MemoryRecadoRepository) ReplaceFull(_ context.Context, id int64, in RecadoInput) (*Recado, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil, ErrRecadoNotFound
	}
	r.items[i] = Recado{
		ID:        id,
		Text:      in.Text,
		From:      in.From,
		To:        in.To,
		Read:      false,
		CreatedAt: r.now(),
	}
	out := r.items[i]
	return &out, nil
}

// MarkRead flips read to true and leaves CreatedAt alone.
func (r *MemoryRecadoRepository) MarkRead(_ context.Context, id int64) (*Recado, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil, ErrRecadoNotFound
	}
	r.items[i].Read = true
	out := r.items[i]
	return &out, nil
}

func (r *MemoryRecadoRepository) Remove(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return ErrRecadoNotFound
	}
	r.items = append(r.items[:i], r.items[i+1:]...)
	return nil
}

func (r *MemoryRecadoRepository) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items), nil
}

// indexOf must be called with mu held.
func (r *MemoryRecadoRepository) indexOf(id int64) int {
	for i := range r.items {
		if r.items[i].ID == id {
			return i
		}
	}
	return -1
}
