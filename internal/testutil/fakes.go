// Package testutil содержит подставные внешние системы и заготовки данных для тестов сценариев.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/prontocasa-backend/internal/config"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/repository"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
	"github.com/ignatzorin/prontocasa-backend/internal/logger"
)

// ErrUnavailable — отказ подставной внешней системы.
var ErrUnavailable = errors.New("service unavailable")

func init() {
	logger.Discard()
}

// Rules возвращает правила площадки по умолчанию без задержек между повторами.
func Rules() config.Marketplace {
	m := config.DefaultMarketplace()
	m.ProcessorRetryDelay = 0
	m.NotifyTimeout = time.Second
	return m
}

// Estimator возвращает заданную оценку или ошибку.
type Estimator struct {
	mu         sync.Mutex
	Assessment valueobject.Assessment
	Err        error
	Calls      int
}

// NewEstimator возвращает оценщик с диапазоном 80.00-250.00 и средней серьёзностью.
func NewEstimator() *Estimator {
	return &Estimator{Assessment: valueobject.Assessment{
		Severity:               valueobject.SeverityMedium,
		Confidence:             85,
		ProbableIssue:          "протечка в соединении",
		SafetyInstructions:     []string{"перекройте воду"},
		EstimatedDurationHours: 1.5,
		PriceRange:             valueobject.PriceRange{Min: 8000, Max: 25000},
	}}
}

func (e *Estimator) Estimate(ctx context.Context, in repository.EstimateInput) (*valueobject.Assessment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls++
	if e.Err != nil {
		return nil, e.Err
	}
	a := e.Assessment
	return &a, nil
}

// SetErr меняет ошибку оценщика между вызовами.
func (e *Estimator) SetErr(err error) {
	e.mu.Lock()
	e.Err = err
	e.mu.Unlock()
}

// Notification — одно доставленное предложение.
type Notification struct {
	TechnicianID uuid.UUID
	RequestID    uuid.UUID
	Level        int
}

// Notifier запоминает доставленные предложения. Мастера из Offline получают ошибку.
type Notifier struct {
	mu      sync.Mutex
	sent    []Notification
	Offline map[uuid.UUID]bool
	FailAll bool
}

func NewNotifier() *Notifier {
	return &Notifier{Offline: make(map[uuid.UUID]bool)}
}

func (n *Notifier) NotifyTechnician(ctx context.Context, tech *entity.Technician, req *entity.Request, level int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.FailAll || n.Offline[tech.ID] {
		return ErrUnavailable
	}
	n.sent = append(n.sent, Notification{TechnicianID: tech.ID, RequestID: req.ID, Level: level})
	return nil
}

// Sent возвращает копию доставленных предложений.
func (n *Notifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

// Processor — платёжный процессор в памяти. Fail[op] задаёт число неудачных попыток подряд.
type Processor struct {
	mu    sync.Mutex
	seq   int
	Fail  map[string]int
	Calls map[string]int
	// Refunds хранит суммы возвратов по ссылке удержания.
	Refunds map[string]valueobject.Cents
	// Payouts хранит суммы выплат мастерам по ссылке удержания.
	Payouts map[string]valueobject.Cents
	gates   map[string]*gate
}

type gate struct {
	entered chan struct{}
	resume  chan struct{}
}

func NewProcessor() *Processor {
	return &Processor{
		Fail:    make(map[string]int),
		Calls:   make(map[string]int),
		Refunds: make(map[string]valueobject.Cents),
		Payouts: make(map[string]valueobject.Cents),
		gates:   make(map[string]*gate),
	}
}

// Pause останавливает следующий вызов op. Канал закрывается, когда вызов дошёл до процессора;
// вызов продолжается после resume.
func (p *Processor) Pause(op string) (entered <-chan struct{}, resume func()) {
	g := &gate{entered: make(chan struct{}), resume: make(chan struct{})}
	p.mu.Lock()
	p.gates[op] = g
	p.mu.Unlock()
	return g.entered, func() { close(g.resume) }
}

func (p *Processor) wait(op string) {
	p.mu.Lock()
	g, ok := p.gates[op]
	delete(p.gates, op)
	p.mu.Unlock()
	if ok {
		close(g.entered)
		<-g.resume
	}
}

func (p *Processor) call(op string) (string, error) {
	p.Calls[op]++
	if p.Fail[op] > 0 {
		p.Fail[op]--
		return "", fmt.Errorf("%s: %w", op, ErrUnavailable)
	}
	p.seq++
	return fmt.Sprintf("%s-%d", op, p.seq), nil
}

func (p *Processor) Hold(ctx context.Context, paymentID uuid.UUID, amount valueobject.Cents) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.call("hold")
}

func (p *Processor) Capture(ctx context.Context, holdRef string) (string, error) {
	p.wait("capture")
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.call("capture")
}

func (p *Processor) Transfer(ctx context.Context, holdRef string, payout valueobject.Cents) (string, error) {
	p.wait("transfer")
	p.mu.Lock()
	defer p.mu.Unlock()
	ref, err := p.call("transfer")
	if err == nil {
		p.Payouts[holdRef] = payout
	}
	return ref, err
}

func (p *Processor) Refund(ctx context.Context, holdRef string, amount valueobject.Cents) (string, error) {
	p.wait("refund")
	p.mu.Lock()
	defer p.mu.Unlock()
	ref, err := p.call("refund")
	if err == nil {
		p.Refunds[holdRef] = amount
	}
	return ref, err
}

// CallCount возвращает число вызовов операции.
func (p *Processor) CallCount(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Calls[op]
}

// FailNext заставляет следующие n вызовов операции завершиться ошибкой.
func (p *Processor) FailNext(op string, n int) {
	p.mu.Lock()
	p.Fail[op] = n
	p.mu.Unlock()
}

// Signatures сохраняет подписи в памяти.
type Signatures struct {
	mu    sync.Mutex
	saved map[uuid.UUID]string
}

func NewSignatures() *Signatures {
	return &Signatures{saved: make(map[uuid.UUID]string)}
}

func (s *Signatures) Save(ctx context.Context, requestID uuid.UUID, encoded string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[requestID] = encoded
	return fmt.Sprintf("signatures/%s.png", requestID), "checksum-" + requestID.String()[:8], nil
}

// TechnicianOption настраивает мастера перед сохранением.
type TechnicianOption func(t *entity.Technician)

func WithRating(rating float64, jobs int) TechnicianOption {
	return func(t *entity.Technician) {
		t.Rating = rating
		t.CompletedJobs = jobs
	}
}

func Unverified() TechnicianOption {
	return func(t *entity.Technician) { t.IsVerified = false }
}

// SeedTechnician сохраняет верифицированного мастера, готового принимать заказы.
func SeedTechnician(t *testing.T, store repository.Store, specialization string, opts ...TechnicianOption) *entity.Technician {
	t.Helper()
	ctx := context.Background()
	code, err := store.Technicians().NextCode(ctx)
	require.NoError(t, err)
	tech, err := entity.NewTechnician(uuid.New(), code, "Мастер "+code, []string{specialization}, 3000, time.Now().UTC())
	require.NoError(t, err)
	tech.IsVerified = true
	tech.IsAvailableNow = true
	tech.Rating = 4.5
	for _, opt := range opts {
		opt(tech)
	}
	require.NoError(t, store.Technicians().Create(ctx, tech))
	return tech
}

// RequestParams возвращает корректные данные новой заявки клиента.
func RequestParams(clientID uuid.UUID, category string) entity.NewRequestParams {
	return entity.NewRequestParams{
		ClientID:    clientID,
		Category:    category,
		Title:       "Протекает труба под раковиной",
		Description: "Под раковиной на кухне течёт вода из соединения трубы",
		MediaURLs:   []string{"https://cdn.example.com/leak.jpg"},
		Latitude:    45.4642,
		Longitude:   9.19,
		Address:     "Via Torino 5, Milano",
	}
}

// Photos возвращает n корректных ссылок на фото результата.
func Photos(n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, fmt.Sprintf("https://cdn.example.com/done-%d.jpg", i+1))
	}
	return out
}

var (
	_ repository.Estimator       = (*Estimator)(nil)
	_ repository.Notifier        = (*Notifier)(nil)
	_ repository.EscrowProcessor = (*Processor)(nil)
)
