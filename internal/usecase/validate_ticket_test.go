package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"transit-ticketing/internal/domain/event"
	"transit-ticketing/internal/domain/ticket"
	"transit-ticketing/internal/infrastructure/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs map[string][]event.Message
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, topic, _ string, msg event.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if p.msgs == nil {
		p.msgs = make(map[string][]event.Message)
	}
	p.msgs[topic] = append(p.msgs[topic], msg)
	return nil
}

func (p *recordingPublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs[topic])
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store    *memory.TicketStore
	pub      *recordingPublisher
	clock    *clock
	validate *ValidateTicket
	get      *GetTicket
	expire   *ExpireTicket
}

func newFixture() *fixture {
	f := &fixture{
		store: memory.NewTicketStore(),
		pub:   &recordingPublisher{},
		clock: &clock{t: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)},
	}
	f.validate = NewValidateTicket(memory.Transactor{}, f.store, f.pub, nil, ticket.DefaultDurations(), 0, discardLogger())
	f.validate.now = f.clock.Now
	f.get = NewGetTicket(f.store, nil, discardLogger())
	f.get.now = f.clock.Now
	f.expire = NewExpireTicket(f.store, nil, discardLogger())
	f.expire.now = f.clock.Now
	return f
}

func (f *fixture) insert(t *testing.T, fare ticket.FareClass, status ticket.Status) *ticket.Ticket {
	t.Helper()
	now := f.clock.Now()
	tk := ticket.New("user-1", "route-1", fare, now, now)
	tk.Status = status
	require.NoError(t, f.store.Insert(context.Background(), tk))
	return tk
}

func TestValidate_FirstValidationSetsExpiry(t *testing.T) {
	f := newFixture()
	tk := f.insert(t, ticket.FareSingle, ticket.StatusPaid)
	require.Nil(t, tk.Expiry)

	res, err := f.validate.Execute(context.Background(), tk.ID, "bus-12")
	require.NoError(t, err)

	assert.Equal(t, ticket.StatusValidated, res.Status)
	assert.Equal(t, 1, res.RemainingUses)
	require.NotNil(t, res.Expiry)
	assert.Equal(t, f.clock.Now().Add(time.Hour), *res.Expiry)
	assert.Equal(t, 1, f.pub.count(event.TopicTicketValidated))
}

func TestValidate_LaterValidationsKeepExpiry(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tk := f.insert(t, ticket.FareMulti, ticket.StatusPaid)

	first, err := f.validate.Execute(ctx, tk.ID, "bus-1")
	require.NoError(t, err)
	f.clock.Advance(10 * time.Minute)
	second, err := f.validate.Execute(ctx, tk.ID, "tram-4")
	require.NoError(t, err)

	assert.Equal(t, *first.Expiry, *second.Expiry)
	assert.Equal(t, 3, second.RemainingUses)

	got, err := f.store.FindByID(ctx, tk.ID)
	require.NoError(t, err)
	require.Len(t, got.Validations, 2)
	assert.Equal(t, "bus-1", got.Validations[0].VehicleID)
	assert.Equal(t, "tram-4", got.Validations[1].VehicleID)
}

func TestValidate_PassKeepsUnlimitedUses(t *testing.T) {
	f := newFixture()
	tk := f.insert(t, ticket.FarePass, ticket.StatusPaid)

	for range 10 {
		res, err := f.validate.Execute(context.Background(), tk.ID, "bus-1")
		require.NoError(t, err)
		assert.Equal(t, ticket.UnlimitedUses, res.RemainingUses)
	}
}

func TestValidate_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		f := newFixture()
		_, err := f.validate.Execute(ctx, "missing", "bus-1")
		assert.ErrorIs(t, err, ticket.ErrNotFound)
	})

	t.Run("unpaid", func(t *testing.T) {
		f := newFixture()
		tk := f.insert(t, ticket.FareSingle, ticket.StatusCreated)
		_, err := f.validate.Execute(ctx, tk.ID, "bus-1")
		assert.ErrorIs(t, err, ticket.ErrNotEligible)
	})

	t.Run("exhausted", func(t *testing.T) {
		f := newFixture()
		tk := f.insert(t, ticket.FareMulti, ticket.StatusPaid)
		for range 5 {
			_, err := f.validate.Execute(ctx, tk.ID, "bus-1")
			require.NoError(t, err)
		}
		_, err := f.validate.Execute(ctx, tk.ID, "bus-1")
		assert.ErrorIs(t, err, ticket.ErrExhaustedUses)
	})

	t.Run("expired triggers transition", func(t *testing.T) {
		f := newFixture()
		tk := f.insert(t, ticket.FareSingle, ticket.StatusPaid)
		_, err := f.validate.Execute(ctx, tk.ID, "bus-1")
		require.NoError(t, err)

		f.clock.Advance(2 * time.Hour)
		_, err = f.validate.Execute(ctx, tk.ID, "bus-1")
		assert.ErrorIs(t, err, ticket.ErrExpired)

		got, err := f.store.FindByID(ctx, tk.ID)
		require.NoError(t, err)
		assert.Equal(t, ticket.StatusExpired, got.Status)
		assert.Empty(t, got.Validations)

		_, err = f.validate.Execute(ctx, tk.ID, "bus-1")
		assert.ErrorIs(t, err, ticket.ErrNotEligible)
	})
}

func TestValidate_PublishFailureFailsTheCall(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tk := f.insert(t, ticket.FareMulti, ticket.StatusPaid)
	f.pub.err = errors.New("broker down")

	_, err := f.validate.Execute(ctx, tk.ID, "bus-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ticket.ErrConflict)

	// memory.Transactor cannot roll back, so the boarding stays applied.
	// The Postgres transactor undoes it together with the outbox insert.
	got, err := f.store.FindByID(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.StatusValidated, got.Status)
	assert.Equal(t, tk.RemainingUses-1, got.RemainingUses)
	assert.Len(t, got.Validations, 1)

	f.pub.err = nil
	res, err := f.validate.Execute(ctx, tk.ID, "bus-1")
	require.NoError(t, err)
	assert.Equal(t, tk.RemainingUses-2, res.RemainingUses, "a client retry consumes a second use")
}

func TestValidate_ConcurrentBoardingsBoundedByUses(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tk := f.insert(t, ticket.FareMulti, ticket.StatusPaid)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		ok         int
		rejected   int
		unexpected []error
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.validate.Execute(ctx, tk.ID, "bus-1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ticket.ErrExhaustedUses), errors.Is(err, ticket.ErrConflict):
				rejected++
			default:
				unexpected = append(unexpected, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, unexpected)
	assert.Equal(t, 5, ok)
	assert.Equal(t, 15, rejected)

	got, err := f.store.FindByID(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.RemainingUses)
	assert.Len(t, got.Validations, 5)
	assert.Equal(t, 5, f.pub.count(event.TopicTicketValidated))
}

// racingStore expires the ticket right before the validator's write lands.
type racingStore struct {
	*memory.TicketStore
	once sync.Once
	now  time.Time
}

func (s *racingStore) ConditionalUpdate(ctx context.Context, id string, pre ticket.Precondition, m ticket.Mutation) (*ticket.Ticket, error) {
	if m.AppendValidation != nil {
		s.once.Do(func() {
			_, _ = s.TicketStore.ConditionalUpdate(ctx, id, ticket.Precondition{Statuses: ticket.Active}, ticket.Expire(s.now))
		})
	}
	return s.TicketStore.ConditionalUpdate(ctx, id, pre, m)
}

func TestValidate_LosesRaceToSweeper(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tk := f.insert(t, ticket.FareMulti, ticket.StatusPaid)

	store := &racingStore{TicketStore: f.store, now: f.clock.Now()}
	uc := NewValidateTicket(memory.Transactor{}, store, f.pub, nil, ticket.DefaultDurations(), 3, discardLogger())
	uc.now = f.clock.Now

	_, err := uc.Execute(ctx, tk.ID, "bus-1")
	assert.ErrorIs(t, err, ticket.ErrNotEligible)

	got, err := f.store.FindByID(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.StatusExpired, got.Status)
	assert.Empty(t, got.Validations, "no half-applied validation")
	assert.Equal(t, 5, got.RemainingUses)
	assert.Equal(t, 0, f.pub.count(event.TopicTicketValidated))
}

// conflictingStore always reports a lost race.
type conflictingStore struct {
	*memory.TicketStore
	calls int
}

func (s *conflictingStore) ConditionalUpdate(context.Context, string, ticket.Precondition, ticket.Mutation) (*ticket.Ticket, error) {
	s.calls++
	return nil, ticket.ErrPreconditionFailed
}

func TestValidate_ConflictAfterBoundedAttempts(t *testing.T) {
	f := newFixture()
	tk := f.insert(t, ticket.FareSingle, ticket.StatusPaid)

	store := &conflictingStore{TicketStore: f.store}
	uc := NewValidateTicket(memory.Transactor{}, store, f.pub, nil, ticket.DefaultDurations(), 4, discardLogger())

	_, err := uc.Execute(context.Background(), tk.ID, "bus-1")
	assert.ErrorIs(t, err, ticket.ErrConflict)
	assert.Equal(t, 4, store.calls)
}
